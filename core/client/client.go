// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to the campus REST api

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is perfectly suited for unit tests. With NewWithURL, the same client talks to a
remote server.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/campus/core/access"
)

// Client provides easy access to the REST API.
type Client struct {
	router     *mux.Router
	httpClient *http.Client
	url        string
	token      string
	auth       *access.Authorization
	ctx        context.Context
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the mux router
//
// WithAuthorization() adds an authorization to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router *mux.Router) Client {
	return Client{
		router: router,
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// WithToken returns a new client which sends token as bearer token
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithAdminAuthorization returns a new client with admin and user authorizations
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithAdminAuthorization() Client {
	return c.WithAuthorization(&access.Authorization{
		Identity: "admin@campus",
		Roles:    []string{access.RoleUser, access.RoleAdmin},
	})
}

// WithRole returns a new client with role authorization
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithRole(role string) Client {
	c.auth = &access.Authorization{
		Roles: []string{role},
	}
	return c
}

// WithAuthorization returns a new client with specific authorizations
// (this works only directly against the mux router, for a normal client
// use WithToken())
func (c Client) WithAuthorization(auth *access.Authorization) Client {
	c.auth = auth
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context of the client, including its authorization
func (c Client) Context() context.Context {
	ctx := c.ctx
	if c.ctx == nil {
		ctx = context.Background()
	}
	if c.auth != nil {
		ctx = access.ContextWithAuthorization(ctx, c.auth)
	}
	return ctx
}

// Resource represents the REST routes of one resource
type Resource struct {
	client *Client
	path   string
}

// Resource returns a new resource client for the resource at path, e.g. "/api/helprequest"
func (c Client) Resource(path string) Resource {
	return Resource{
		client: &c,
		path:   "/" + strings.Trim(path, "/"),
	}
}

// Path returns the base path of the resource
func (r Resource) Path() string {
	return r.path
}

// ItemPath returns the path addressing the item with id
func (r Resource) ItemPath(id int64) string {
	return r.path + "?id=" + strconv.FormatInt(id, 10)
}

// CreatePath returns the path for creating an item from fields. Parameters are sorted
// by key.
func (r Resource) CreatePath(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parameters := make([]string, 0, len(keys))
	for _, key := range keys {
		parameters = append(parameters, url.QueryEscape(key)+"="+url.QueryEscape(fields[key]))
	}
	path := r.path + "/post"
	if len(parameters) > 0 {
		path += "?" + strings.Join(parameters, "&")
	}
	return path
}

// List gets all items of the resource.
//
// The operation corresponds to a GET request on {path}/all.
//
// result can be a slice of records or a raw *[]byte.
func (r Resource) List(result interface{}) (int, error) {
	return r.client.RawGet(r.path+"/all", result)
}

// Read gets the item with id.
//
// The operation corresponds to a GET request.
func (r Resource) Read(id int64, result interface{}) (int, error) {
	return r.client.RawGet(r.ItemPath(id), result)
}

// Create creates a new item from the field values, which are passed as query
// parameters.
//
// The operation corresponds to a POST request on {path}/post.
func (r Resource) Create(fields map[string]string, result interface{}) (int, error) {
	return r.client.RawPost(r.CreatePath(fields), nil, result)
}

// Update replaces the fields of the item with id with the fields of body.
//
// The operation corresponds to a PUT request.
//
// body can also be a []byte, result can also be raw *[]byte.
func (r Resource) Update(id int64, body interface{}, result interface{}) (int, error) {
	return r.client.RawPut(r.ItemPath(id), body, result)
}

// Delete deletes the item with id. result receives the confirmation message and can be nil.
//
// The operation corresponds to a DELETE request.
func (r Resource) Delete(id int64, result interface{}) (int, error) {
	return r.client.RawDelete(r.ItemPath(id), result)
}

// RawGet gets a resource from path. Expects http.StatusOK as response, otherwise it will
// flag an error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// result can be a map[string]interface{} or a raw *[]byte.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	return c.do(http.MethodGet, path, nil, result)
}

// RawPost posts to path. Expects http.StatusOK or http.StatusCreated as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// body can be nil or a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPost, path, body, result)
}

// RawPut puts a resource to path. Expects http.StatusOK as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPut(path string, body interface{}, result interface{}) (int, error) {
	return c.do(http.MethodPut, path, body, result)
}

// RawDelete deletes a resource at path. Expects http.StatusOK or http.StatusNoContent as response,
// otherwise it will flag an error. Returns the actual http status code.
//
// result can be nil.
func (c Client) RawDelete(path string, result interface{}) (int, error) {
	return c.do(http.MethodDelete, path, nil, result)
}

func (c Client) do(method, path string, body interface{}, result interface{}) (int, error) {
	var (
		j   []byte
		err error
	)
	if body != nil {
		var ok bool
		j, ok = body.([]byte)
		if !ok {
			j, err = json.Marshal(body)
			if err != nil {
				return http.StatusBadRequest, fmt.Errorf("%s to %s: %w", method, path, err)
			}
		}
	}

	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, bytes.NewReader(j))
	if err != nil {
		return http.StatusBadRequest, fmt.Errorf("%s to %s: %w", method, path, err)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	var (
		status  int
		resBody []byte
	)
	if c.router != nil {
		rec := httptest.NewRecorder()
		c.router.ServeHTTP(rec, r)
		status = rec.Code
		resBody = rec.Body.Bytes()
	} else {
		if c.token != "" {
			r.Header.Add("Authorization", "Bearer "+c.token)
		}
		res, err := c.httpClient.Do(r)
		if err != nil {
			return http.StatusInternalServerError, err
		}
		defer res.Body.Close()
		status = res.StatusCode
		resBody, _ = io.ReadAll(res.Body)
	}

	if status != http.StatusOK && status != http.StatusCreated && status != http.StatusNoContent {
		return status, fmt.Errorf("%s %s got status=%d body=%s", method, path, status, strings.TrimSpace(string(resBody)))
	}
	if len(resBody) > 0 && result != nil {
		if raw, ok := result.(*[]byte); ok {
			*raw = resBody
		} else {
			err = json.Unmarshal(resBody, result)
		}
	}
	return status, err
}
