// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/access"
	"github.com/relabs-tech/campus/core/backend"
	"github.com/relabs-tech/campus/core/client"
)

var configurationJSON = `{
	"resources": [
	  {
		"resource": "RecommendationRequest",
		"path": "/api/Recommendation",
		"deletedName": "Recommendation",
		"fields": [
		  {"name": "requesterEmail", "type": "string"},
		  {"name": "professorEmail", "type": "string"},
		  {"name": "explanation", "type": "string"},
		  {"name": "dateRequested", "type": "datetime"},
		  {"name": "dateNeeded", "type": "datetime"},
		  {"name": "done", "type": "boolean"}
		]
	  },
	  {
		"resource": "HelpRequest",
		"path": "/api/helprequest",
		"fields": [
		  {"name": "requesterEmail", "type": "string"},
		  {"name": "teamId", "type": "string"},
		  {"name": "tableOrBreakoutRoom", "type": "string"},
		  {"name": "requestTime", "type": "datetime", "aliases": ["localDateTime"]},
		  {"name": "explanation", "type": "string"},
		  {"name": "solved", "type": "boolean"}
		]
	  },
	  {
		"resource": "UCSBDiningCommonsMenuItem",
		"path": "/api/UCSBDiningCommonsMenuItem",
		"fields": [
		  {"name": "diningCommonsCode", "type": "string"},
		  {"name": "name", "type": "string"},
		  {"name": "station", "type": "string"}
		]
	  },
	  {
		"resource": "Articles",
		"path": "/api/articles",
		"fields": [
		  {"name": "title", "type": "string"},
		  {"name": "url", "type": "string"},
		  {"name": "explanation", "type": "string"},
		  {"name": "email", "type": "string"},
		  {"name": "dateAdded", "type": "datetime"}
		]
	  },
	  {
		"resource": "UCSBDate",
		"path": "/api/ucsbdates",
		"fields": [
		  {"name": "quarterYYYYQ", "type": "string"},
		  {"name": "name", "type": "string"},
		  {"name": "localDateTime", "type": "datetime"}
		]
	  }
	]
}`

var (
	adminAuth = &access.Authorization{Identity: "phtcon@ucsb.edu", Roles: []string{access.RoleUser, access.RoleAdmin}}
	userAuth  = &access.Authorization{Identity: "cgaucho@ucsb.edu", Roles: []string{access.RoleUser}}
)

// notification is a notification received by the recordingNotifier
type notification struct {
	Resource  string
	Operation core.Operation
	Payload   string
}

// recordingNotifier remembers all notifications
type recordingNotifier struct {
	mutex         sync.Mutex
	notifications []notification
	err           error
}

func (n *recordingNotifier) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.notifications = append(n.notifications, notification{Resource: resource, Operation: operation, Payload: string(payload)})
	return n.err
}

func (n *recordingNotifier) received() []notification {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]notification{}, n.notifications...)
}

// TestService is a backend on top of an in-memory redis
type TestService struct {
	Router   *mux.Router
	Backend  *backend.Backend
	Redis    *miniredis.Miniredis
	Notifier *recordingNotifier
	Metrics  *prometheus.Registry
}

// CreateTestService creates a new service that can be used for testing. Options
// may change the builder before the backend is created.
func CreateTestService(t *testing.T, options ...func(*backend.Builder)) *TestService {
	t.Helper()
	s := &TestService{
		Router:   mux.NewRouter(),
		Redis:    miniredis.RunT(t),
		Notifier: &recordingNotifier{},
		Metrics:  prometheus.NewRegistry(),
	}
	rdb := redis.NewClient(&redis.Options{Addr: s.Redis.Addr()})
	t.Cleanup(func() { rdb.Close() })

	bb := &backend.Builder{
		Config:       configurationJSON,
		Router:       s.Router,
		Repositories: backend.RedisRepositories(rdb, "campus"),
		Notifier:     s.Notifier,
		Metrics:      s.Metrics,
	}
	for _, option := range options {
		option(bb)
	}
	s.Backend = backend.New(bb)
	return s
}

// Admin returns a client with admin authorization
func (s *TestService) Admin() client.Client {
	return client.NewWithRouter(s.Router).WithAuthorization(adminAuth)
}

// User returns a client with user authorization
func (s *TestService) User() client.Client {
	return client.NewWithRouter(s.Router).WithAuthorization(userAuth)
}

// Do runs a raw request against the router
func (s *TestService) Do(method, path string, auth *access.Authorization, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if auth != nil {
		r = r.WithContext(access.ContextWithAuthorization(r.Context(), auth))
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, r)
	return rec
}

var helpRequestFields = map[string]string{
	"requesterEmail":      "cgaucho@ucsb.edu",
	"teamId":              "s22-5pm-3",
	"tableOrBreakoutRoom": "7",
	"requestTime":         "2022-04-20T17:35",
	"explanation":         "Need help with Swagger-ui",
	"solved":              "false",
}
