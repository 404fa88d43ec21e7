package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/fieldsync/internal/core/domain"
)

// measureField resolves an optional measurement to a nullable Float.
func measureField(get func(src interface{}) (domain.Measure, bool)) *graphql.Field {
	return &graphql.Field{
		Type: graphql.Float,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			m, ok := get(p.Source)
			if !ok || !m.Valid {
				return nil, nil
			}
			return m.Value, nil
		},
	}
}

// stringerField resolves a domain enum to its export text.
func stringerField(get func(src interface{}) (string, bool)) *graphql.Field {
	return &graphql.Field{
		Type: graphql.String,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			s, ok := get(p.Source)
			if !ok {
				return nil, nil
			}
			return s, nil
		},
	}
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	siteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Site",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.String},
			"name":     &graphql.Field{Type: graphql.String},
			"location": &graphql.Field{Type: geoPointType},
			"elevation": measureField(func(src interface{}) (domain.Measure, bool) {
				s, ok := src.(domain.Site)
				return s.Elevation, ok
			}),
			"address":           &graphql.Field{Type: graphql.String},
			"city":              &graphql.Field{Type: graphql.String},
			"state_or_province": &graphql.Field{Type: graphql.String},
			"country":           &graphql.Field{Type: graphql.String},
			"comments":          &graphql.Field{Type: graphql.String},
		},
	})

	sampleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Sample",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"site_id":      &graphql.Field{Type: graphql.String},
			"collected_at": &graphql.Field{Type: graphql.DateTime},
			"started_at":   &graphql.Field{Type: graphql.DateTime},
			"type": stringerField(func(src interface{}) (string, bool) {
				s, ok := src.(domain.Sample)
				return s.Type.String(), ok
			}),
			"phase": stringerField(func(src interface{}) (string, bool) {
				s, ok := src.(domain.Sample)
				return s.Phase.String(), ok
			}),
			"volume": measureField(func(src interface{}) (domain.Measure, bool) {
				s, ok := src.(domain.Sample)
				return s.Volume, ok
			}),
			"depth": measureField(func(src interface{}) (domain.Measure, bool) {
				s, ok := src.(domain.Sample)
				return s.Depth, ok
			}),
			"comments": &graphql.Field{Type: graphql.String},
		},
	})

	projectType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Project",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.String},
			"name":             &graphql.Field{Type: graphql.String},
			"contact_name":     &graphql.Field{Type: graphql.String},
			"contact_email":    &graphql.Field{Type: graphql.String},
			"citation":         &graphql.Field{Type: graphql.String},
			"url":              &graphql.Field{Type: graphql.String},
			"sample_id_prefix": &graphql.Field{Type: graphql.String},
			"created_at":       &graphql.Field{Type: graphql.DateTime},
			"sites":            &graphql.Field{Type: graphql.NewList(siteType)},
			"samples":          &graphql.Field{Type: graphql.NewList(sampleType)},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"displayedSites": &graphql.Field{
				Type:        graphql.NewList(siteType),
				Description: "Sites currently shown in the viewport",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Viewport.Displayed(), nil
				},
			},
			"sitesInWindow": &graphql.Field{
				Type:        graphql.NewList(siteType),
				Description: "Cached sites inside a latitude/longitude rectangle",
				Args: graphql.FieldConfigArgument{
					"minLat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"minLon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"maxLat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"maxLon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					w := domain.Window{
						Min: domain.GeoPoint{Lat: p.Args["minLat"].(float64), Lon: p.Args["minLon"].(float64)},
						Max: domain.GeoPoint{Lat: p.Args["maxLat"].(float64), Lon: p.Args["maxLon"].(float64)},
					}
					if !w.Min.Valid() || !w.Max.Valid() {
						return nil, errors.New("window corner out of range")
					}
					return deps.Cache.InWindow(w), nil
				},
			},
			"projects": &graphql.Field{
				Type:        graphql.NewList(projectType),
				Description: "All projects with their sites and samples",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Projects.List(), nil
				},
			},
			"project": &graphql.Field{
				Type:        projectType,
				Description: "Get a project by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Projects.Get(p.Args["id"].(string))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
