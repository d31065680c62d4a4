package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
)

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// ID accepts both numeric and string identifiers.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*id = ID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*id = ID(s)
	return nil
}

type Profile struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

func (c *Client) Token(ctx context.Context, username, password string) (TokenPair, error) {
	var out TokenPair
	err := c.doJSON(ctx, "auth_token", http.MethodPost, "/auth/token", "", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return TokenPair{}, err
	}
	if out.Access == "" {
		return TokenPair{}, &APIError{Endpoint: "auth_token", Status: http.StatusOK, Message: "no access token in response"}
	}
	return out, nil
}

func (c *Client) Profile(ctx context.Context, token string) (Profile, error) {
	var out Profile
	if err := c.doJSON(ctx, "auth_profile", http.MethodGet, "/auth/profile", token, nil, &out); err != nil {
		return Profile{}, err
	}
	if out.Username == "" && out.ID == "" {
		return Profile{}, &APIError{Endpoint: "auth_profile", Status: http.StatusOK, Message: "empty profile"}
	}
	return out, nil
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}
