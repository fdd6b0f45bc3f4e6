// Package config loads mockgql project configuration.
//
// A project is described by a mockgql.yaml (or .yml, or .json) file:
//
//	schema:
//	  - schema/**/*.graphql
//	path: /graphql
//	seed: 42
//	subscriptions:
//	  interval: 500ms
//	  events: 3
//	mocks:
//	  String:
//	    value: Example Data
//	  Group.isSystem:
//	    value: true
//	  DateTime:
//	    expr: now()
//	  User:
//	    value:
//	      role: ADMIN
//
// Loading happens in four steps:
//   - ${VAR} and ${VAR:-default} references are expanded from the environment
//   - the document is decoded as YAML (JSON is accepted as a subset)
//   - it is validated against an embedded JSON Schema; every violation is
//     reported in a single *ValidationError
//   - it is decoded into a ProjectConfig
//
// Mock entries carry either a literal value or an expr-lang expression.
// Expressions may call now(), today(), uuid(), randInt(min, max) and
// pick(a, b, ...). BuildMocks compiles them against a parsed schema into a
// graphql.MockMap.
package config
