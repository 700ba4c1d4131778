/*
Package dsl provides a fluent builder for constructing step form flows
programmatically, instead of loading an editor-authored config file.
This is useful for embedding, dynamic flow generation, and tests.

Example usage:

	flow, err := dsl.New("demo", "demo-form").
		Question("start", "How soon do you need this?",
			dsl.Opt("Urgent"), dsl.Opt("Just researching")).
		Form("contact", "Your details",
			dsl.Field("email", "email", true),
			dsl.Field("name", "text", false)).
		Edge("start", "contact").
		Build()
*/
package dsl
