package neynar

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"memetic/internal/client"
	"memetic/internal/provider"
)

const (
	DefaultBaseURL = "https://api.neynar.com"
	// MaxBulkFIDs is the upstream limit for one bulk lookup.
	MaxBulkFIDs = 100
)

type Client struct {
	http   *resty.Client
	gate   *provider.Client
	apiKey string
}

func NewClient(baseURL, apiKey string, gate *provider.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:   client.NewResty(strings.TrimRight(baseURL, "/")),
		gate:   gate,
		apiKey: apiKey,
	}
}

type User struct {
	FID               uint64            `json:"fid"`
	Username          string            `json:"username"`
	DisplayName       string            `json:"display_name"`
	PfpURL            string            `json:"pfp_url"`
	CustodyAddress    string            `json:"custody_address"`
	Profile           Profile           `json:"profile"`
	FollowerCount     int64             `json:"follower_count"`
	FollowingCount    int64             `json:"following_count"`
	VerifiedAddresses VerifiedAddresses `json:"verified_addresses"`
	Raw               json.RawMessage   `json:"-"`
}

type Profile struct {
	Bio struct {
		Text string `json:"text"`
	} `json:"bio"`
}

type VerifiedAddresses struct {
	EthAddresses []string `json:"eth_addresses"`
	SolAddresses []string `json:"sol_addresses"`
}

type bulkResponse struct {
	Users []json.RawMessage `json:"users"`
}

func (c *Client) Name() string {
	return "neynar"
}

// UsersByFID looks up at most MaxBulkFIDs profiles in one request.
func (c *Client) UsersByFID(ctx context.Context, fids []uint64) ([]User, error) {
	if len(fids) == 0 {
		return nil, nil
	}
	if len(fids) > MaxBulkFIDs {
		return nil, fmt.Errorf("too many fids: %d > %d", len(fids), MaxBulkFIDs)
	}
	ids := make([]string, 0, len(fids))
	for _, fid := range fids {
		ids = append(ids, strconv.FormatUint(fid, 10))
	}
	var out bulkResponse
	err := c.gate.Do(ctx, "user_bulk", func(ctx context.Context) error {
		req := c.http.R().
			SetContext(ctx).
			SetResult(&out).
			SetQueryParam("fids", strings.Join(ids, ","))
		if c.apiKey != "" {
			req.SetHeader("api_key", c.apiKey).SetHeader("x-api-key", c.apiKey)
		}
		resp, err := req.Get("/v2/farcaster/user/bulk")
		return client.CheckResponse(resp, err)
	})
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(out.Users))
	for _, raw := range out.Users {
		var u User
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("%w: decode user: %v", provider.ErrUnavailable, err)
		}
		u.Raw = raw
		users = append(users, u)
	}
	return users, nil
}
