package token_test

import (
	"encoding/json"
	"testing"

	"github.com/chinmina/chinmina-components/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_JSON(t *testing.T) {
	data, err := json.Marshal(token.Options{Refresh: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"refresh":false}`, string(data))

	data, err = json.Marshal(token.Options{Refresh: true, Claims: "c", TenantID: "t"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"refresh":true,"claims":"c","tenantId":"t"}`, string(data))
}

func TestNewResourceOptions(t *testing.T) {
	cases := []struct {
		name    string
		siteURL string
		valid   bool
	}{
		{name: "absolute", siteURL: "https://contoso.sharepoint.com/sites/a", valid: true},
		{name: "empty", siteURL: "", valid: false},
		{name: "relative", siteURL: "/sites/a", valid: false},
		{name: "no host", siteURL: "https:///sites/a", valid: false},
		{name: "unparseable", siteURL: "https://[::1", valid: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := token.NewResourceOptions(token.Options{TenantID: "t"}, tc.siteURL)
			if !tc.valid {
				assert.ErrorIs(t, err, token.ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.siteURL, opts.SiteURL)
			assert.Equal(t, "t", opts.TenantID)
		})
	}
}

func TestParseResourceKind(t *testing.T) {
	cases := []struct {
		input    string
		expected token.ResourceKind
		valid    bool
	}{
		{input: "Graph", expected: token.ResourceKindGraph, valid: true},
		{input: "graph", expected: token.ResourceKindGraph, valid: true},
		{input: "OneDrive", expected: token.ResourceKindOneDrive, valid: true},
		{input: "ONEDRIVE", expected: token.ResourceKindOneDrive, valid: true},
		{input: "SharePoint", valid: false},
		{input: "", valid: false},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			kind, err := token.ParseResourceKind(tc.input)
			if !tc.valid {
				assert.ErrorIs(t, err, token.ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, kind)
		})
	}
}

func TestNewSharingLinkOptions(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		opts, err := token.NewSharingLinkOptions(token.Options{}, "https://contoso.sharepoint.com", token.ResourceKindOneDrive)
		require.NoError(t, err)
		assert.Equal(t, token.ResourceKindOneDrive, opts.Kind)
		assert.Equal(t, "https://contoso.sharepoint.com", opts.SiteURL)
	})

	t.Run("rejects unknown kind at construction", func(t *testing.T) {
		_, err := token.NewSharingLinkOptions(token.Options{}, "https://contoso.sharepoint.com", token.ResourceKind(0))
		assert.ErrorIs(t, err, token.ErrInvalidOptions)

		_, err = token.NewSharingLinkOptions(token.Options{}, "https://contoso.sharepoint.com", token.ResourceKind(7))
		assert.ErrorIs(t, err, token.ErrInvalidOptions)
	})

	t.Run("rejects invalid site", func(t *testing.T) {
		_, err := token.NewSharingLinkOptions(token.Options{}, "sites/a", token.ResourceKindGraph)
		assert.ErrorIs(t, err, token.ErrInvalidOptions)
	})

	t.Run("JSON discriminant", func(t *testing.T) {
		opts, err := token.NewSharingLinkOptions(token.Options{Refresh: true}, "https://a.example", token.ResourceKindGraph)
		require.NoError(t, err)

		data, err := json.Marshal(opts)
		require.NoError(t, err)
		assert.JSONEq(t, `{"refresh":true,"siteUrl":"https://a.example","type":"Graph"}`, string(data))

		var decoded token.SharingLinkOptions
		err = json.Unmarshal([]byte(`{"refresh":false,"siteUrl":"https://a.example","type":"Teams"}`), &decoded)
		assert.ErrorIs(t, err, token.ErrInvalidOptions)
	})
}

func TestResourceOptions_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		valid bool
	}{
		{name: "valid", body: `{"refresh":true,"tenantId":"t","siteUrl":"https://a.example/sites/x"}`, valid: true},
		{name: "missing site", body: `{"refresh":true}`},
		{name: "relative site", body: `{"siteUrl":"/sites/x"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var decoded token.ResourceOptions
			err := json.Unmarshal([]byte(tc.body), &decoded)
			if !tc.valid {
				assert.ErrorIs(t, err, token.ErrInvalidOptions)
				assert.Empty(t, decoded.SiteURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https://a.example/sites/x", decoded.SiteURL)
			assert.Equal(t, "t", decoded.TenantID)
			assert.True(t, decoded.Refresh)
		})
	}
}

func TestSharingLinkOptions_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		kind  token.ResourceKind
		valid bool
	}{
		{name: "graph", body: `{"siteUrl":"https://a.example","type":"Graph"}`, kind: token.ResourceKindGraph, valid: true},
		{name: "onedrive any case", body: `{"siteUrl":"https://a.example","type":"onedrive"}`, kind: token.ResourceKindOneDrive, valid: true},
		{name: "missing type", body: `{"refresh":false,"siteUrl":"https://a.example"}`},
		{name: "empty type", body: `{"siteUrl":"https://a.example","type":""}`},
		{name: "missing site", body: `{"type":"Graph"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var decoded token.SharingLinkOptions
			err := json.Unmarshal([]byte(tc.body), &decoded)
			if !tc.valid {
				assert.ErrorIs(t, err, token.ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.kind, decoded.Kind)
			assert.Equal(t, "https://a.example", decoded.SiteURL)
			assert.NoError(t, decoded.Validate())
		})
	}
}

func TestSharingLinkOptions_Validate(t *testing.T) {
	assert.ErrorIs(t, token.SharingLinkOptions{}.Validate(), token.ErrInvalidOptions)

	opts, err := token.NewSharingLinkOptions(token.Options{}, "https://a.example", token.ResourceKindGraph)
	require.NoError(t, err)
	assert.NoError(t, opts.Validate())
}

func TestMatchKind(t *testing.T) {
	match := func(kind token.ResourceKind) string {
		opts, err := token.NewSharingLinkOptions(token.Options{}, "https://a.example", kind)
		require.NoError(t, err)

		return token.MatchKind(opts,
			func() string { return "graph" },
			func() string { return "onedrive" },
		)
	}

	assert.Equal(t, "graph", match(token.ResourceKindGraph))
	assert.Equal(t, "onedrive", match(token.ResourceKindOneDrive))

	assert.Panics(t, func() {
		token.MatchKind(token.SharingLinkOptions{}, func() int { return 1 }, func() int { return 2 })
	})
}

func TestParseIdentityType(t *testing.T) {
	it, err := token.ParseIdentityType("consumer")
	require.NoError(t, err)
	assert.Equal(t, token.IdentityConsumer, it)
	assert.False(t, it.TenantScoped())
	assert.Equal(t, "Consumer", it.String())

	it, err = token.ParseIdentityType("Enterprise")
	require.NoError(t, err)
	assert.Equal(t, token.IdentityEnterprise, it)
	assert.True(t, it.TenantScoped())

	_, err = token.ParseIdentityType("guest")
	assert.Error(t, err)
}
