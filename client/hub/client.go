package hub

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cyverse-de/go-mod/restutils"
	"github.com/cyverse-de/hub-gateway/logging"
	"github.com/pkg/errors"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

var log = logging.Log.WithFields(logrus.Fields{"package": "client.hub"})

const otelName = "github.com/cyverse-de/hub-gateway/client/hub"

// HubClient talks to a JupyterHub's REST API rooted at <base>/hub/api. Every
// request carries the admin API token; the underlying connection pool is
// shared by all callers and lives for the life of the client.
type HubClient struct {
	HubBase  string
	APIToken string

	httpClient *http.Client
}

// NewHubClient builds a client for the hub at base. When verifySSL is false
// the hub's TLS certificate is not checked, for hubs running with self-signed
// certificates. The timeout bounds each whole request, body included.
func NewHubClient(base, apiToken string, verifySSL bool, timeout time.Duration) *HubClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 120 * time.Second,
		}).DialContext,
		MaxIdleConns:    20,
		IdleConnTimeout: 120 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !verifySSL,
		},
	}

	return &HubClient{
		HubBase:  strings.TrimRight(base, "/"),
		APIToken: apiToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
	}
}

// Close releases the client's pooled connections. Safe to call once at
// process shutdown; in-flight requests are not interrupted.
func (c *HubClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *HubClient) uriPath(pathParts ...string) (string, error) {
	base, err := url.Parse(c.HubBase)
	if err != nil {
		return "", errors.Wrap(err, "Failed to parse hub base URL")
	}

	uri := base.JoinPath("hub", "api").JoinPath(pathParts...)
	return uri.String(), nil
}

// serverPath builds the path for a named server under a user. The empty name
// addresses the default server, which the hub exposes at the trailing-slash
// form of the servers path.
func (c *HubClient) serverPath(user, serverName string) (string, error) {
	uri, err := c.uriPath("users", user, "servers", serverName)
	if err != nil {
		return "", err
	}
	if serverName == "" {
		uri = uri + "/"
	}
	return uri, nil
}

func (c *HubClient) reqJSON(ctx context.Context, method, uri string, body io.Reader, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, uri, body)
	if err != nil {
		return errors.Wrap(err, "Failed creating request with context")
	}
	req.Header.Set("Authorization", fmt.Sprintf("token %s", c.APIToken))
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "Failed requesting URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			log.Error(errors.Wrap(err, "Failed reading error response"))
		}
		return restutils.NewHTTPError(resp.StatusCode, fmt.Sprintf("%s %s returned %d: %s", method, uri, resp.StatusCode, strings.TrimSpace(string(b))))
	}

	if target != nil {
		err = json.NewDecoder(resp.Body).Decode(target)
		if err == io.EOF {
			// Some hub endpoints answer 2xx with no body.
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "Failed decoding JSON")
		}
	}
	return nil
}

// deleteJSON issues a DELETE and decodes the response body. The hub returns
// empty bodies for most deletions, in which case a {"status": "deleted"}
// result is synthesized.
func (c *HubClient) deleteJSON(ctx context.Context, uri string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, uri, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Failed creating request with context")
	}
	req.Header.Set("Authorization", fmt.Sprintf("token %s", c.APIToken))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "Failed requesting URL")
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "Failed reading response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, restutils.NewHTTPError(resp.StatusCode, fmt.Sprintf("DELETE %s returned %d: %s", uri, resp.StatusCode, strings.TrimSpace(string(b))))
	}

	if len(bytes.TrimSpace(b)) == 0 {
		return map[string]any{"status": "deleted"}, nil
	}

	var result map[string]any
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, errors.Wrap(err, "Failed decoding JSON")
	}
	return result, nil
}

// Check pings the hub's health endpoint, propagating any failure. Used at
// startup to verify connectivity and credentials.
func (c *HubClient) Check(ctx context.Context) error {
	uri, err := c.uriPath("health")
	if err != nil {
		return err
	}
	return c.reqJSON(ctx, http.MethodGet, uri, nil, nil)
}

// GetHealth never returns an error: any failure, transport or HTTP, becomes a
// degraded result with status "error" and the failure description as detail.
func (c *HubClient) GetHealth(ctx context.Context) Health {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetHealth")
	defer span.End()

	var h Health

	uri, err := c.uriPath("health")
	if err == nil {
		err = c.reqJSON(ctx, http.MethodGet, uri, nil, &h)
	}
	if err != nil {
		return Health{Status: "error", Detail: err.Error()}
	}
	return h
}

// GetInfo returns the hub's version and environment information. The payload
// varies between hub versions, so it stays an open map.
func (c *HubClient) GetInfo(ctx context.Context) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetInfo")
	defer span.End()

	var info map[string]any

	uri, err := c.uriPath("info")
	if err != nil {
		return nil, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &info)
	return info, err
}

// List all hub users
func (c *HubClient) ListUsers(ctx context.Context) ([]User, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "ListUsers")
	defer span.End()

	var users []User

	uri, err := c.uriPath("users")
	if err != nil {
		return nil, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &users)
	return users, err
}

// Get a single user's record, including its servers mapping
func (c *HubClient) GetUser(ctx context.Context, name string) (User, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetUser")
	defer span.End()

	var u User

	uri, err := c.uriPath("users", name)
	if err != nil {
		return u, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &u)
	return u, err
}

// Create a hub user
func (c *HubClient) CreateUser(ctx context.Context, name string, admin bool) (User, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "CreateUser")
	defer span.End()

	var u User

	uri, err := c.uriPath("users")
	if err != nil {
		return u, err
	}

	msg, err := json.Marshal(map[string]any{"name": name, "admin": admin})
	if err != nil {
		return u, errors.Wrap(err, "Failed to marshal user to create")
	}

	err = c.reqJSON(ctx, http.MethodPost, uri, bytes.NewBuffer(msg), &u)
	return u, err
}

// Delete a hub user
func (c *HubClient) DeleteUser(ctx context.Context, name string) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "DeleteUser")
	defer span.End()

	uri, err := c.uriPath("users", name)
	if err != nil {
		return nil, err
	}

	return c.deleteJSON(ctx, uri)
}

// ModifyUser patches a user's record. Only explicitly supplied fields go into
// the payload; a nil admin flag is omitted entirely rather than sent as null.
func (c *HubClient) ModifyUser(ctx context.Context, name string, admin *bool) (User, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "ModifyUser")
	defer span.End()

	var u User

	uri, err := c.uriPath("users", name)
	if err != nil {
		return u, err
	}

	data := map[string]any{}
	if admin != nil {
		data["admin"] = *admin
	}
	msg, err := json.Marshal(data)
	if err != nil {
		return u, errors.Wrap(err, "Failed to marshal user modification")
	}

	err = c.reqJSON(ctx, http.MethodPatch, uri, bytes.NewBuffer(msg), &u)
	return u, err
}

// ListServers is a derived read: the hub has no servers collection endpoint,
// so the full user record is fetched and its servers mapping extracted.
func (c *HubClient) ListServers(ctx context.Context, user string) (map[string]Server, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "ListServers")
	defer span.End()

	u, err := c.GetUser(ctx, user)
	if err != nil {
		return nil, errors.Wrap(err, "Failed fetching user record for server listing")
	}

	if u.Servers == nil {
		return map[string]Server{}, nil
	}
	return u.Servers, nil
}

// Get a single server's record; the empty name addresses the default server
func (c *HubClient) GetServer(ctx context.Context, user, serverName string) (Server, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetServer")
	defer span.End()

	var s Server

	uri, err := c.serverPath(user, serverName)
	if err != nil {
		return s, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &s)
	return s, err
}

// StartServer requests a spawn for the user's server. Spawn options, when
// given, are passed through to the spawner untouched.
func (c *HubClient) StartServer(ctx context.Context, user, serverName string, options map[string]any) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "StartServer")
	defer span.End()

	uri, err := c.serverPath(user, serverName)
	if err != nil {
		return nil, err
	}

	if options == nil {
		options = map[string]any{}
	}
	msg, err := json.Marshal(options)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to marshal spawn options")
	}

	var result map[string]any
	err = c.reqJSON(ctx, http.MethodPost, uri, bytes.NewBuffer(msg), &result)
	return result, err
}

// StopServer requests a stop for the user's server. Teardown happens
// asynchronously upstream; a success here only means the hub accepted it.
func (c *HubClient) StopServer(ctx context.Context, user, serverName string) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "StopServer")
	defer span.End()

	uri, err := c.serverPath(user, serverName)
	if err != nil {
		return nil, err
	}

	return c.deleteJSON(ctx, uri)
}

// List all hub groups
func (c *HubClient) ListGroups(ctx context.Context) ([]Group, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "ListGroups")
	defer span.End()

	var groups []Group

	uri, err := c.uriPath("groups")
	if err != nil {
		return nil, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &groups)
	return groups, err
}

// Get a single group
func (c *HubClient) GetGroup(ctx context.Context, name string) (Group, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetGroup")
	defer span.End()

	var g Group

	uri, err := c.uriPath("groups", name)
	if err != nil {
		return g, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &g)
	return g, err
}

// CreateGroup creates a group, optionally with initial members. The users
// field is omitted from the payload when no members are given.
func (c *HubClient) CreateGroup(ctx context.Context, name string, users []string) (Group, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "CreateGroup")
	defer span.End()

	var g Group

	uri, err := c.uriPath("groups")
	if err != nil {
		return g, err
	}

	data := map[string]any{"name": name}
	if len(users) > 0 {
		data["users"] = users
	}
	msg, err := json.Marshal(data)
	if err != nil {
		return g, errors.Wrap(err, "Failed to marshal group to create")
	}

	err = c.reqJSON(ctx, http.MethodPost, uri, bytes.NewBuffer(msg), &g)
	return g, err
}

// Delete a group
func (c *HubClient) DeleteGroup(ctx context.Context, name string) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "DeleteGroup")
	defer span.End()

	uri, err := c.uriPath("groups", name)
	if err != nil {
		return nil, err
	}

	return c.deleteJSON(ctx, uri)
}

// AddGroupMember adds a user to a group. The hub wants the username wrapped
// in a list-valued users field, POSTed to the group's users sub-resource.
func (c *HubClient) AddGroupMember(ctx context.Context, groupName, username string) (Group, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "AddGroupMember")
	defer span.End()

	var g Group

	uri, err := c.uriPath("groups", groupName, "users")
	if err != nil {
		return g, err
	}

	msg, err := json.Marshal(map[string]any{"users": []string{username}})
	if err != nil {
		return g, errors.Wrap(err, "Failed to marshal group membership")
	}

	err = c.reqJSON(ctx, http.MethodPost, uri, bytes.NewBuffer(msg), &g)
	return g, err
}

// RemoveGroupMember removes a user from a group. Unlike adds, removal is a
// bodyless DELETE of the user-in-group sub-resource; the two shapes are the
// hub's, not ours.
func (c *HubClient) RemoveGroupMember(ctx context.Context, groupName, username string) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "RemoveGroupMember")
	defer span.End()

	uri, err := c.uriPath("groups", groupName, "users", username)
	if err != nil {
		return nil, err
	}

	return c.deleteJSON(ctx, uri)
}

// List all hub services
func (c *HubClient) ListServices(ctx context.Context) ([]Service, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "ListServices")
	defer span.End()

	var services []Service

	uri, err := c.uriPath("services")
	if err != nil {
		return nil, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &services)
	return services, err
}

// Get a single service
func (c *HubClient) GetService(ctx context.Context, name string) (Service, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetService")
	defer span.End()

	var s Service

	uri, err := c.uriPath("services", name)
	if err != nil {
		return s, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &s)
	return s, err
}

// List all API tokens the hub knows about
func (c *HubClient) ListTokens(ctx context.Context) ([]Token, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "ListTokens")
	defer span.End()

	var tokens []Token

	uri, err := c.uriPath("tokens")
	if err != nil {
		return nil, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &tokens)
	return tokens, err
}

// Get a single token's metadata (never the secret itself)
func (c *HubClient) GetToken(ctx context.Context, tokenID string) (Token, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetToken")
	defer span.End()

	var t Token

	uri, err := c.uriPath("tokens", tokenID)
	if err != nil {
		return t, err
	}

	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &t)
	return t, err
}

// CreateToken mints an API token for a user. Note and expiry are the only
// fields forwarded, and only when set; the response is the one time the
// token secret is readable.
func (c *HubClient) CreateToken(ctx context.Context, user, note string, expiresIn int) (Token, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "CreateToken")
	defer span.End()

	var t Token

	uri, err := c.uriPath("users", user, "tokens")
	if err != nil {
		return t, err
	}

	data := map[string]any{}
	if note != "" {
		data["note"] = note
	}
	if expiresIn > 0 {
		data["expires_in"] = expiresIn
	}
	msg, err := json.Marshal(data)
	if err != nil {
		return t, errors.Wrap(err, "Failed to marshal token to create")
	}

	err = c.reqJSON(ctx, http.MethodPost, uri, bytes.NewBuffer(msg), &t)
	return t, err
}

// Delete a user's token
func (c *HubClient) DeleteToken(ctx context.Context, user, tokenID string) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "DeleteToken")
	defer span.End()

	uri, err := c.uriPath("users", user, "tokens", tokenID)
	if err != nil {
		return nil, err
	}

	return c.deleteJSON(ctx, uri)
}

// Shutdown asks the hub to shut itself down
func (c *HubClient) Shutdown(ctx context.Context) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "Shutdown")
	defer span.End()

	uri, err := c.uriPath("shutdown")
	if err != nil {
		return nil, err
	}

	var result map[string]any
	err = c.reqJSON(ctx, http.MethodPost, uri, nil, &result)
	return result, err
}

// GetProxy returns the hub proxy's routing table
func (c *HubClient) GetProxy(ctx context.Context) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "GetProxy")
	defer span.End()

	uri, err := c.uriPath("proxy")
	if err != nil {
		return nil, err
	}

	var result map[string]any
	err = c.reqJSON(ctx, http.MethodGet, uri, nil, &result)
	return result, err
}

// ForceProxyCheck asks the hub to re-check the proxy's routes
func (c *HubClient) ForceProxyCheck(ctx context.Context) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "ForceProxyCheck")
	defer span.End()

	uri, err := c.uriPath("proxy")
	if err != nil {
		return nil, err
	}

	var result map[string]any
	err = c.reqJSON(ctx, http.MethodPost, uri, nil, &result)
	return result, err
}

// CullServers triggers the hub's idle-server culler
func (c *HubClient) CullServers(ctx context.Context) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "CullServers")
	defer span.End()

	uri, err := c.uriPath("cull")
	if err != nil {
		return nil, err
	}

	var result map[string]any
	err = c.reqJSON(ctx, http.MethodPost, uri, nil, &result)
	return result, err
}

// PostActivity records activity for a user, optionally scoped to named
// servers. The servers field is omitted when empty.
func (c *HubClient) PostActivity(ctx context.Context, user string, servers []string) (map[string]any, error) {
	ctx, span := otel.Tracer(otelName).Start(ctx, "PostActivity")
	defer span.End()

	uri, err := c.uriPath("users", user, "activity")
	if err != nil {
		return nil, err
	}

	data := map[string]any{}
	if len(servers) > 0 {
		data["servers"] = servers
	}
	msg, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to marshal activity report")
	}

	var result map[string]any
	err = c.reqJSON(ctx, http.MethodPost, uri, bytes.NewBuffer(msg), &result)
	return result, err
}
