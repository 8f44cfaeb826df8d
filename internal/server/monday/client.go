package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

const apiVersion = "2024-10"

// ErrPlatform wraps failures of the platform API (transport, non-2xx or
// GraphQL errors).
var ErrPlatform = errors.New("platform api error")

// RoleFacts are the live privileges of one user on one board.
type RoleFacts struct {
	IsAdmin bool
	IsOwner bool
}

// Privileged reports whether the user outranks any stored role.
func (f RoleFacts) Privileged() bool {
	return f.IsAdmin || f.IsOwner
}

// Client calls the platform GraphQL API with a tenant credential.
type Client struct {
	endpoint string
	http     *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (c *Client) do(ctx context.Context, credential string, req gqlRequest) (gjson.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", credential)
	httpReq.Header.Set("API-Version", apiVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrPlatform, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: read body: %v", ErrPlatform, err)
	}
	if resp.StatusCode/100 != 2 {
		return gjson.Result{}, fmt.Errorf("%w: status %d", ErrPlatform, resp.StatusCode)
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json", ErrPlatform)
	}
	doc := gjson.ParseBytes(raw)
	if errs := doc.Get("errors"); errs.Exists() && len(errs.Array()) > 0 {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrPlatform, errs.Get("0.message").String())
	}
	if msg := doc.Get("error_message"); msg.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrPlatform, msg.String())
	}
	return doc.Get("data"), nil
}

const rolesQuery = `query ($users: [ID!], $boards: [ID!]) {
  users(ids: $users) { id is_admin }
  boards(ids: $boards) { owners { id } }
}`

// Roles returns admin and owner facts for userIDs on externalBoardID in a
// single call. Users the platform does not return are unprivileged. An
// empty board id only answers the admin question.
func (c *Client) Roles(ctx context.Context, credential, externalBoardID string, userIDs []string) (map[string]RoleFacts, error) {
	out := make(map[string]RoleFacts, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	for _, id := range userIDs {
		out[id] = RoleFacts{}
	}

	boards := []string{}
	if externalBoardID != "" {
		boards = append(boards, externalBoardID)
	}
	data, err := c.do(ctx, credential, gqlRequest{
		Query:     rolesQuery,
		Variables: map[string]any{"users": userIDs, "boards": boards},
	})
	if err != nil {
		return nil, err
	}

	data.Get("users").ForEach(func(_, u gjson.Result) bool {
		id := u.Get("id").String()
		if f, ok := out[id]; ok {
			f.IsAdmin = u.Get("is_admin").Bool()
			out[id] = f
		}
		return true
	})
	data.Get("boards.0.owners").ForEach(func(_, o gjson.Result) bool {
		id := o.Get("id").String()
		if f, ok := out[id]; ok {
			f.IsOwner = true
			out[id] = f
		}
		return true
	})
	return out, nil
}

// Me returns the account and user id of the credential owner.
func (c *Client) Me(ctx context.Context, credential string) (accountID, userID string, err error) {
	data, err := c.do(ctx, credential, gqlRequest{Query: `query { me { id account { id } } }`})
	if err != nil {
		return "", "", err
	}
	accountID = data.Get("me.account.id").String()
	userID = data.Get("me.id").String()
	if accountID == "" {
		return "", "", fmt.Errorf("%w: account id missing from response", ErrPlatform)
	}
	return accountID, userID, nil
}
