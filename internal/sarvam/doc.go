// Package sarvam implements stage.Client over the Sarvam AI HTTP API.
// Speech-to-text is a multipart upload of the encoded capture; translation
// and text-to-speech are JSON requests. Every call is authenticated with the
// api-subscription-key header and bounded by a shared concurrency limit.
// Calls are never retried.
package sarvam
