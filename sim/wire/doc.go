// Package wire frames XML documents over a stream connection.
//
// Each message is one document serialized on a single line, preceded by the
// XML declaration line and terminated by an empty line:
//
//	<?xml version="1.0" encoding="UTF-8"?>
//	<request><request_type>REQ_CIRCUITS</request_type></request>
//	(empty line)
//
// The reader concatenates every non-empty line until it sees the empty line,
// so peers that pretty-print across several lines are still understood as long
// as they never emit a blank line inside a document.
package wire
