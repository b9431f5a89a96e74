// Package provider defines the interface to the language-model backend.
// The interface covers exactly one completion shape (a single user prompt,
// streamed or not) and one embedding call. Adapters translate it to their
// backend protocol internally, keeping wire details invisible to the engine.
package provider
