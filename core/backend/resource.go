// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/campus/core"
	"github.com/relabs-tech/campus/core/access"
	"github.com/relabs-tech/campus/core/logger"
)

// resource serves the REST routes of one configured resource
type resource struct {
	b          *Backend
	rc         *ResourceConfiguration
	repository Repository
}

// deletedResponse is the body of a successful delete
type deletedResponse struct {
	Message string `json:"message"`
}

func (b *Backend) createResource(router *mux.Router, rc *ResourceConfiguration, repository Repository) {
	res := &resource{b: b, rc: rc, repository: repository}

	rlog := logger.Default()
	rlog.Debugln("resource", rc.Resource)
	rlog.Debugln("  handle routes:", rc.Path+"/all", "GET")
	rlog.Debugln("  handle routes:", rc.Path+"/post", "POST")
	rlog.Debugln("  handle routes:", rc.Path, "GET,PUT,DELETE")

	route := func(operation core.Operation, h handlerFunc) http.Handler {
		var handler http.Handler = h
		handler = access.Guard(operation, rc.Permits)(handler)
		handler = handlers.CompressHandler(handler)
		return b.metrics.instrument(rc.Resource, operation, handler)
	}

	router.Handle(rc.Path+"/all", route(core.OperationList, res.list)).Methods(http.MethodOptions, http.MethodGet)
	router.Handle(rc.Path+"/post", route(core.OperationCreate, res.create)).Methods(http.MethodOptions, http.MethodPost)
	router.Handle(rc.Path, route(core.OperationRead, res.read)).Methods(http.MethodOptions, http.MethodGet)
	router.Handle(rc.Path, route(core.OperationUpdate, res.update)).Methods(http.MethodPut)
	router.Handle(rc.Path, route(core.OperationDelete, res.delete)).Methods(http.MethodDelete)
}

// list returns all records
func (res *resource) list(w http.ResponseWriter, r *http.Request) error {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	records, err := res.repository.FindAll(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, records)
	return nil
}

// read returns the record with the id from the query
func (res *resource) read(w http.ResponseWriter, r *http.Request) error {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	id, err := parseID(r)
	if err != nil {
		return err
	}
	record, err := res.find(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, record)
	return nil
}

// create creates a record from the query parameters, one per field
func (res *resource) create(w http.ResponseWriter, r *http.Request) error {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	query := r.URL.Query()
	record := res.rc.NewRecord()
	for _, field := range res.rc.Fields {
		s, ok := queryValue(query, field)
		if !ok {
			return badRequest("missing parameter '%s'", field.Name)
		}
		v, err := field.parseValue(s)
		if err != nil {
			return badRequest("parameter '%s': %s", field.Name, err)
		}
		record.Values[field.Name] = v
	}

	record, err := res.repository.Save(r.Context(), record)
	if err != nil {
		return err
	}
	res.notify(r.Context(), core.OperationCreate, record)
	writeJSON(w, http.StatusOK, record)
	return nil
}

// update overwrites all fields of the record with the id from the query with the
// fields of the body. An id in the body is ignored.
func (res *resource) update(w http.ResponseWriter, r *http.Request) error {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	id, err := parseID(r)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest("cannot read body: %s", err)
	}
	if err = res.b.validator.Validate(res.rc.schemaID(), body); err != nil {
		return badRequest("%s", err)
	}
	var object map[string]interface{}
	if err = json.Unmarshal(body, &object); err != nil {
		return badRequest("invalid body: %s", err)
	}

	record, err := res.find(r.Context(), id)
	if err != nil {
		return err
	}
	for _, field := range res.rc.Fields {
		v, err := field.jsonValue(object[field.Name])
		if err != nil {
			return badRequest("property '%s': %s", field.Name, err)
		}
		record.Values[field.Name] = v
	}

	record, err = res.repository.Save(r.Context(), record)
	if err != nil {
		return err
	}
	res.notify(r.Context(), core.OperationUpdate, record)
	writeJSON(w, http.StatusOK, record)
	return nil
}

// delete removes the record with the id from the query
func (res *resource) delete(w http.ResponseWriter, r *http.Request) error {
	logger.FromContext(r.Context()).Infoln("called route for", r.URL, r.Method)
	id, err := parseID(r)
	if err != nil {
		return err
	}
	record, err := res.find(r.Context(), id)
	if err != nil {
		return err
	}
	if err = res.repository.Delete(r.Context(), record); err != nil {
		return err
	}
	res.notify(r.Context(), core.OperationDelete, record)
	writeJSON(w, http.StatusOK, deletedResponse{Message: fmt.Sprintf("%s with id %d deleted", res.rc.DeletedName, id)})
	return nil
}

func (res *resource) find(ctx context.Context, id int64) (Record, error) {
	record, ok, err := res.repository.FindByID(ctx, id)
	if err != nil {
		return record, err
	}
	if !ok {
		return record, &EntityNotFoundError{Resource: res.rc.Resource, ID: id}
	}
	return record, nil
}

// notify sends a change notification. Failures are logged only.
func (res *resource) notify(ctx context.Context, operation core.Operation, record Record) {
	if res.b.notifier == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err == nil {
		err = res.b.notifier.Notify(ctx, res.rc.Resource, operation, payload)
	}
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Error 4733: cannot notify %s %s with id %d", operation, res.rc.Resource, record.ID)
	}
}

func parseID(r *http.Request) (int64, error) {
	s := r.URL.Query().Get("id")
	if len(s) == 0 {
		return 0, badRequest("missing parameter 'id'")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, badRequest("parameter 'id': '%s' is not a valid id", s)
	}
	return id, nil
}

// queryValue returns the query parameter for field, under its name or any of its aliases
func queryValue(query map[string][]string, field FieldConfiguration) (string, bool) {
	for _, name := range append([]string{field.Name}, field.Aliases...) {
		if values, ok := query[name]; ok && len(values) > 0 {
			return values[0], true
		}
	}
	return "", false
}
