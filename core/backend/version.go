// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/access"
	"github.com/relabs-tech/campus/core/logger"
)

var (
	// Version is the version of the curent build
	Version = "unset"
)

// adminOnly permits reading to admins only
var adminOnly = []access.Permit{{Role: access.RoleAdmin, Operations: []core.Operation{core.OperationRead}}}

func (b *Backend) handleVersion(router *mux.Router) {
	logger.Default().Debugln("version")
	logger.Default().Debugln("  handle version route: /version GET")
	router.Handle("/version", access.Guard(core.OperationRead, adminOnly)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	}))).Methods(http.MethodOptions, http.MethodGet)
}

// resourceStatistics represents information about a resource
type resourceStatistics struct {
	Resource string `json:"resource"`
	Path     string `json:"path"`
	Count    int    `json:"count"`
}

func (b *Backend) handleStatistics(router *mux.Router) {
	logger.Default().Debugln("statistics")
	logger.Default().Debugln("  handle statistics route: /api/statistics GET")
	router.Handle("/api/statistics", handlers.CompressHandler(access.Guard(core.OperationRead, adminOnly)(handlerFunc(b.statistics)))).
		Methods(http.MethodOptions, http.MethodGet)
}

// statistics returns the number of records of every resource, in configuration order
func (b *Backend) statistics(w http.ResponseWriter, r *http.Request) error {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	s := make([]resourceStatistics, 0, len(b.config.Resources))
	for _, rc := range b.config.Resources {
		records, err := b.repositories[rc.Resource].FindAll(r.Context())
		if err != nil {
			return err
		}
		s = append(s, resourceStatistics{Resource: rc.Resource, Path: rc.Path, Count: len(records)})
	}
	writeJSON(w, http.StatusOK, s)
	return nil
}
