package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/busqai/internal/model"
)

func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("monto inválido: %q", s)
	}
	return v, nil
}

func newProfileCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the current profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			p, err := a.data.Me(cmd.Context())
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.AddCommand(newProfileSetupCmd(getApp))
	cmd.AddCommand(newProfileLocationCmd(getApp))
	return cmd
}

func newProfileSetupCmd(getApp func() *app) *cobra.Command {
	var (
		name     string
		userType string
		address  string
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Complete the profile after the first sign-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			p, err := a.data.CreateProfile(cmd.Context(), model.ProfileInput{
				FullName: name, UserType: model.Role(userType), Address: address,
			})
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name (required)")
	cmd.Flags().StringVar(&userType, "type", string(model.RoleBuyer), "buyer or seller")
	cmd.Flags().StringVar(&address, "address", "", "address")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newProfileLocationCmd(getApp func() *app) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "location <lat> <lng>",
		Short: "Update the profile location",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			lat, err1 := strconv.ParseFloat(args[0], 64)
			lng, err2 := strconv.ParseFloat(args[1], 64)
			if err1 != nil || err2 != nil {
				return fmt.Errorf("coordenadas inválidas")
			}
			p, err := a.data.UpdateLocation(cmd.Context(), model.LocationInput{Latitude: lat, Longitude: lng, Address: address})
			if err != nil {
				return err
			}
			printProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "address")
	return cmd
}

func newSearchCmd(getApp func() *app) *cobra.Command {
	var (
		p        model.SearchParams
		lat, lng float64
		near     bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search products",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			if len(args) == 1 {
				p.Query = args[0]
			}
			if near {
				p.Lat, p.Lng = &lat, &lng
			}
			list, err := a.data.SearchProducts(cmd.Context(), p)
			if err != nil {
				return err
			}
			printProducts(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.Category, "category", "", "category filter")
	cmd.Flags().Float64Var(&p.MaxPrice, "max-price", 0, "maximum price, Bs")
	cmd.Flags().Float64Var(&p.MaxDistanceKM, "max-km", 0, "maximum distance, km (with --near)")
	cmd.Flags().BoolVar(&near, "near", false, "sort by distance from --lat/--lng")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().IntVar(&p.Limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&p.Offset, "offset", 0, "page offset")
	return cmd
}

func newPopularCmd(getApp func() *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "popular",
		Short: "Most popular products",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			list, err := a.data.PopularProducts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printProducts(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of products")
	return cmd
}

func newProductCmd(getApp func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product <id>",
		Short: "Show a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			p, err := a.data.GetProduct(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printProduct(cmd.OutOrStdout(), p)
			return nil
		},
	}
	cmd.AddCommand(newProductCreateCmd(getApp))
	cmd.AddCommand(newProductEditCmd(getApp))
	return cmd
}

func newProductCreateCmd(getApp func() *app) *cobra.Command {
	var (
		in    model.ProductInput
		image string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a product (sellers only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			if image != "" {
				f, err := os.Open(image)
				if err != nil {
					return err
				}
				up, err := a.data.UploadImage(cmd.Context(), filepath.Base(image), f)
				f.Close()
				if err != nil {
					return err
				}
				in.ImageURL = up.URL
			}
			p, err := a.data.CreateProduct(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Producto publicado: %s\n", p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "title (required)")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().Float64Var(&in.Price, "price", 0, "price, Bs (required)")
	cmd.Flags().IntVar(&in.Stock, "stock", 1, "units in stock")
	cmd.Flags().StringVar(&image, "image", "", "path to a product photo")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("price")
	return cmd
}

func newProductEditCmd(getApp func() *app) *cobra.Command {
	var (
		title     string
		price     float64
		stock     int
		available bool
		visible   bool
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit one of your products",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			var upd model.ProductUpdate
			flags := cmd.Flags()
			if flags.Changed("title") {
				upd.Title = &title
			}
			if flags.Changed("price") {
				upd.Price = &price
			}
			if flags.Changed("stock") {
				upd.Stock = &stock
			}
			if flags.Changed("available") {
				upd.IsAvailable = &available
			}
			if flags.Changed("visible") {
				upd.IsVisible = &visible
			}
			p, err := a.data.UpdateProduct(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			printInventory(cmd.OutOrStdout(), []model.Product{*p})
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().Float64Var(&price, "price", 0, "new price, Bs")
	cmd.Flags().IntVar(&stock, "stock", 0, "units in stock")
	cmd.Flags().BoolVar(&available, "available", true, "available for sale")
	cmd.Flags().BoolVar(&visible, "visible", true, "visible in search")
	return cmd
}

func newInventoryCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inventory",
		Short: "Your products",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			list, err := a.data.MyProducts(cmd.Context())
			if err != nil {
				return err
			}
			printInventory(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

func newWalletCmd(getApp func() *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet balance and recent movements",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			w, err := a.data.Wallet(cmd.Context())
			if err != nil {
				return err
			}
			moves, err := a.data.WalletMovements(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printWallet(cmd.OutOrStdout(), w, moves)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of movements")
	return cmd
}

func newRechargeCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recharge <amount>",
		Short: "Top up the wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			w, err := a.data.Recharge(cmd.Context(), amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saldo: %s\n", formatBs(w.Balance))
			return nil
		},
	}
}

func newDashboardCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Seller metrics and recent sales",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := getApp()
			if err := a.requireLogin(); err != nil {
				return err
			}
			m, err := a.data.SellerMetrics(cmd.Context())
			if err != nil {
				return err
			}
			sales, err := a.data.MySales(cmd.Context())
			if err != nil {
				return err
			}
			printDashboard(cmd.OutOrStdout(), m, sales)
			return nil
		},
	}
}
