package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSellerDecodesStringOrObject(t *testing.T) {
	var res ProductSearchResult
	require.NoError(t, json.Unmarshal([]byte(`{"id":"p1","seller":"Doña Rosa"}`), &res))
	assert.Equal(t, SellerNamed, res.Seller.Kind)
	assert.Equal(t, "Doña Rosa", res.Seller.DisplayName())

	require.NoError(t, json.Unmarshal([]byte(`{"id":"p1","seller":{"id":"u9","full_name":"Juan"}}`), &res))
	assert.Equal(t, ProfileSeller("u9", "Juan"), res.Seller)

	var empty ProductSearchResult
	require.NoError(t, json.Unmarshal([]byte(`{"id":"p1","seller":null}`), &empty))
	assert.Equal(t, "Vendedor", empty.Seller.DisplayName())

	assert.Error(t, json.Unmarshal([]byte(`{"seller":42}`), &res))
}

func TestSellerEncodesByKind(t *testing.T) {
	b, err := json.Marshal(NamedSeller("Ana"))
	require.NoError(t, err)
	assert.JSONEq(t, `"Ana"`, string(b))

	b, err = json.Marshal(ProfileSeller("u1", "Ana"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","full_name":"Ana"}`, string(b))
}

func TestProductNegotiable(t *testing.T) {
	p := Product{IsVisible: true, IsAvailable: true}
	assert.True(t, p.Negotiable())
	p.IsAvailable = false
	assert.False(t, p.Negotiable())
}

func TestMessageOrderTieBreaksOnID(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NegotiationMessage{ID: "a", CreatedAt: at}
	b := NegotiationMessage{ID: "b", CreatedAt: at}
	c := NegotiationMessage{ID: "0", CreatedAt: at.Add(time.Second)}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c))
}

func TestChatRoles(t *testing.T) {
	c := Chat{BuyerID: "b", SellerID: "s"}
	role, ok := c.RoleOf("s")
	assert.True(t, ok)
	assert.Equal(t, RoleSeller, role)
	_, ok = c.RoleOf("x")
	assert.False(t, ok)
	assert.Equal(t, "b", c.Counterpart("s"))
}
