/*
Package backend implements the configurable campus backend

A backend manages a set of flat resources and provides an auto-generated RESTful-API for them.
Records are stored either in Postgres-SQL or in Redis, see SQLRepositories and RedisRepositories.

Configuration

The configuration is done entirely via JSON. It consists of resources, each with a name, a route
path and a list of fields. A field is of type "string", "boolean" or "datetime".

Example:
  {
	"resources": [
	  {
		"resource": "UCSBDate",
		"path": "/api/ucsbdates",
		"fields": [
		  {"name": "quarterYYYYQ", "type": "string"},
		  {"name": "name", "type": "string"},
		  {"name": "localDateTime", "type": "datetime"}
		],
		"permits": [
		  {"role": "user", "operations": ["read", "list"]},
		  {"role": "admin", "operations": ["create", "read", "update", "delete", "list"]}
		]
	  }
	]
  }

The table defaults to the snake case of the resource name ("ucsb_date"), every column to the snake case of
its field name ("quarter_yyyyq"). Both can be overridden with "table" and "column". A field may have "aliases",
additional names under which it is accepted as query parameter on creation. Resources without permits get
read and list for users and everything for admins.

This configuration creates the following REST routes:
	GET /api/ucsbdates/all
	GET /api/ucsbdates?id={id}
	POST /api/ucsbdates/post?quarterYYYYQ=...&name=...&localDateTime=...
	PUT /api/ucsbdates?id={id}
	DELETE /api/ucsbdates?id={id}

The model looks like this:

	UCSBDate
	{
		"id": INTEGER,
		"quarterYYYYQ": STRING,
		"name": STRING,
		"localDateTime": "2022-01-03T00:00:00"
	}

Creation takes every field as query parameter and answers with the created record. Update takes the
entire record as JSON body and overwrites every field; an "id" in the body is ignored. Delete answers with

	{"message": "UCSBDate with id 7 deleted"}

A resource may set "deletedName" to name itself differently in this message.

Reading, updating or deleting a record that does not exist yields 404 with

	{"type": "EntityNotFoundException", "message": "UCSBDate with id 7 not found"}

Requests without the necessary permit are rejected with 403 before any storage access.
Malformed input yields 400.

Additional Routes

	GET /api/currentUser   the caller's authorization, 204 for anonymous callers
	GET /api/statistics    number of records per resource (admin)
	GET /version           the build version (admin)
	GET /metrics           prometheus metrics

Notifications

If the backend has a notifier, every successful create, update and delete sends the record as
JSON to the notifier. Notification failures are logged and do not fail the request.
*/
package backend
