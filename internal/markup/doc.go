// Package markup turns fetched documents into a stream of start-element events. It offers a
// lenient HTML tokenizer, a strict XML decoder that resolves DTD entities through a shared
// cache, a tidy pass that rewrites HTML as XHTML, and charset-aware text decoding.
package markup
