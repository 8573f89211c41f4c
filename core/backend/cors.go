// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/relabs-tech/campus/core/logger"
)

func (b *Backend) handleCORS() {
	b.router.Use(handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", logger.RequestIDHeader}),
		handlers.ExposedHeaders([]string{logger.RequestIDHeader}),
		handlers.MaxAge(86400), // 24 hours
	))
}
