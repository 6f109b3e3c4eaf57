// Package wire implements the minimal protobuf wire-format subset and gRPC
// data framing used by the Google device APIs.
//
// The decoder is intentionally schema-free: messages are maps from field
// number to the raw values seen on the wire, and callers pick out the fields
// they understand. Malformed or unknown input never fails hard; decoding
// stops at the first byte it cannot interpret and returns the fields decoded
// so far, which matches how the upstream responses carry trailing fields this
// client does not model.
package wire
