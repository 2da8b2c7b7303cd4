// Package fulfillment watches the backend push channel for randomness
// fulfillment of individual tickets.
//
// Protocol (JSON text frames over a WebSocket):
//
//	-> {"cmd":"subscribe","request_id":"0x5"}
//	<- {"type":"subscribed","request_id":"0x5"}
//	<- {"type":"requested","request_id":"0x5","deploy_hash":"..."}
//	<- {"type":"fulfilled","request_id":"0x5","randomness":"...","deploy_hash":"..."}
//	<- {"type":"timeout","request_id":"0x5"}
//
// Each watch moves idle -> subscribed -> fulfilled | timed-out | disconnected.
// The ready signal (fulfilled or timed out) is surfaced at most once per
// request id for the lifetime of a Service.
package fulfillment
