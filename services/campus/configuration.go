// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package main

// configurationJSON declares the campus resources
var configurationJSON string = `
{
	"resources": [
	  {
		"resource": "RecommendationRequest",
		"path": "/api/Recommendation",
		"deletedName": "Recommendation",
		"description": "requests for letters of recommendation",
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
		"description": "help requests of teams during sections",
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
		"description": "menu items of the dining commons",
		"fields": [
		  {"name": "diningCommonsCode", "type": "string"},
		  {"name": "name", "type": "string"},
		  {"name": "station", "type": "string"}
		]
	  },
	  {
		"resource": "Articles",
		"path": "/api/articles",
		"description": "interesting articles",
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
		"description": "important dates of the quarter",
		"fields": [
		  {"name": "quarterYYYYQ", "type": "string"},
		  {"name": "name", "type": "string"},
		  {"name": "localDateTime", "type": "datetime"}
		]
	  }
	]
}
`
