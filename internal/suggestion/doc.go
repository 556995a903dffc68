// Package suggestion turns aggregated meeting availability into a single proposed slot.
//
// The engine renders a prompt, asks a generative text Model for a reply and parses the reply
// leniently. Replies that cannot be parsed never surface as errors: the engine answers with a
// deterministic fallback instead. Only a failed model call is reported to the caller.
package suggestion
