// Package resolver assembles decision contexts: it resolves user attributes
// through an optional directory client, normalizes resource identity, and
// classifies request content for sensitive data, either through an external
// classifier service or a built-in pattern matcher.
package resolver
