package gateway

import (
	"github.com/graphql-go/graphql"

	"github.com/kannel-go/smsbox/internal/dlr"
	"github.com/kannel-go/smsbox/internal/urltrans"
)

// buildSchema generates a query-only GraphQL schema over the two
// in-process tables the admin surface exposes: configured translations
// and individual DLR entries. Unlike the teacher's Hasura-style engine,
// there is no live SQL catalog to introspect — the object types are
// fixed, matching the small, well-known shape of these two records.
func buildSchema(translations *urltrans.List, store dlr.Store) (*graphql.Schema, error) {
	translationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Translation",
		Fields: graphql.Fields{
			"name":         &graphql.Field{Type: graphql.String},
			"username":     &graphql.Field{Type: graphql.String},
			"smscId":       &graphql.Field{Type: graphql.String},
			"keyword":      &graphql.Field{Type: graphql.String},
			"pattern":      &graphql.Field{Type: graphql.String},
			"type":         &graphql.Field{Type: graphql.Int},
			"maxMessages":  &graphql.Field{Type: graphql.Int},
			"concatenation": &graphql.Field{Type: graphql.Boolean},
		},
	})

	dlrEntryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "DLREntry",
		Fields: graphql.Fields{
			"smsc":        &graphql.Field{Type: graphql.String},
			"timestamp":   &graphql.Field{Type: graphql.String},
			"source":      &graphql.Field{Type: graphql.String},
			"destination": &graphql.Field{Type: graphql.String},
			"service":     &graphql.Field{Type: graphql.String},
			"url":         &graphql.Field{Type: graphql.String},
			"mask":        &graphql.Field{Type: graphql.Int},
			"boxcId":      &graphql.Field{Type: graphql.String},
			"status":      &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"translations": &graphql.Field{
				Type: graphql.NewList(translationType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					all := translations.All()
					out := make([]map[string]any, 0, len(all))
					for _, t := range all {
						out = append(out, map[string]any{
							"name":          t.Name,
							"username":      t.Username,
							"smscId":        t.SMSCID,
							"keyword":       t.Keyword,
							"pattern":       t.Pattern,
							"type":          int(t.Type),
							"maxMessages":   t.MaxMessages,
							"concatenation": t.Concatenation,
						})
					}
					return out, nil
				},
			},
			"dlrEntry": &graphql.Field{
				Type: dlrEntryType,
				Args: graphql.FieldConfigArgument{
					"smsc":        &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"timestamp":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"destination": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					smsc, _ := p.Args["smsc"].(string)
					ts, _ := p.Args["timestamp"].(string)
					dst, _ := p.Args["destination"].(string)
					e, ok := store.Get(p.Context, smsc, ts, dst)
					if !ok {
						return nil, nil
					}
					return map[string]any{
						"smsc": e.SMSC, "timestamp": e.Timestamp, "source": e.Source,
						"destination": e.Destination, "service": e.Service, "url": e.URL,
						"mask": e.Mask, "boxcId": e.BoxCID, "status": e.Status,
					}, nil
				},
			},
			"dlrCount": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return int(store.Messages(p.Context)), nil
				},
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}
