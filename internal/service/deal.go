package service

import "math"

// DefaultCommissionRate — комиссия платформы с продавца, 5 % от итоговой цены.
const DefaultCommissionRate = 0.05

// RoundCents округляет сумму до сентаво (половина — от нуля).
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Commission возвращает комиссию и доход продавца; сумма обоих равна цене.
func Commission(price, rate float64) (commission, earnings float64) {
	if rate < 0 || math.IsNaN(rate) {
		rate = 0
	}
	commission = RoundCents(price * rate)
	earnings = RoundCents(price - commission)
	return commission, earnings
}
