// Package server provides the HTTP surface of the coupon relay.
//
// This package is internal and handles all HTTP concerns:
//
//   - Result intake: POST /v1/coupon-messages accepts backend results
//   - Client streams: GET /v1/coupons/{kind}/results/{requestId}/stream is a
//     Server-Sent Events stream that registers the connection and delivers
//     the result when it is ready
//   - Gateway hooks: POST and DELETE /v1/coupon-connections let an external
//     push gateway report connects and disconnects
//   - Operations: GET /healthz and GET /metrics
//
// Every response except the stream and the operational endpoints uses the
// envelope {success, status, data, errorMessages}.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
