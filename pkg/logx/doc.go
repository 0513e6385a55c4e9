// Package logx configures adhand's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller), or JSON
//   - File output JSON-structured
//   - An optional notify sink for warnings (min-level + rate limiting)
package logx
