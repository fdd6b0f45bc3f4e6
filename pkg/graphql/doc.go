// Package graphql executes GraphQL operations against an SDL schema without
// any resolvers: every field value is fabricated by a Mock Map.
//
// A Mock Map is keyed by type name ("String", "Group") or by field path
// ("Group.name"). Lookup for a field goes, in order:
//   - the value supplied by the parent object's mock record
//   - the "Type.field" mock
//   - the mock registered for the field's named type
//   - the built-in default for that type
//
// Built-in defaults: Int is a random integer in [-100, 100], Float a random
// float in [-100, 100), String and any unmocked custom scalar "Hello World",
// Boolean a random bool, ID a random UUID, an enum a random member, and a
// list two elements. Interface and union positions resolve through a
// "__typename" in the supplied record, else the abstract type's own mock,
// else a random possible type.
//
// Basic usage:
//
//	schema, err := graphql.ParseSchema(`
//	    type Query { group: Group }
//	    type Group { id: ID!, name: String!, isSystem: Boolean! }
//	`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mocks := graphql.MockMap{
//	    "String":         graphql.Static("Example Data"),
//	    "Group.isSystem": graphql.Static(true),
//	}
//
//	exec := graphql.NewExecutor(schema, mocks)
//	resp := exec.Execute(ctx, &graphql.GraphQLRequest{Query: "{ group { name isSystem } }"})
//
// Handler serves queries and mutations over HTTP (GET and POST). With a
// SubscriptionHandler attached it also accepts WebSocket upgrades on the same
// path, speaking both graphql-transport-ws and the legacy graphql-ws
// protocol; each subscription event is a new execution of the selection set.
package graphql
