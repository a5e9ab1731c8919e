// Package schema provides explicit model descriptions for record loaders.
//
// A Model declares the attributes of a record type with their value types and the
// associations to other models. A Set groups models and implements recordloader.Schema.
//
// Models can be declared with the builder methods:
//
//	comment := schema.New("Comment").
//		Attribute("id", recordloader.Integer).
//		Attribute("post_id", recordloader.Integer).
//		BelongsTo("post", "Post", "post_id")
//
// or derived from a tagged struct with Reflect.
package schema
