package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/graphql-go/graphql"
)

type graphqlRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// serveGraphQL accepts either a GET with a `query` parameter or a POST
// with a JSON body, matching the teacher's GraphQLHandler entry point.
func (s *Server) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		req.Query = r.URL.Query().Get("query")
	}

	result := graphql.Do(graphql.Params{
		Schema:         *s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
