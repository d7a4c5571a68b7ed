// Package relay contains the order relay bounded context.
// This context forwards newly created orders from the shop database to the
// Mikro ERP.
//
// Key concepts:
//   - Order / OrderItem: read-only snapshots of the source tables
//   - EnrichedOrderItem: the denormalized line that crosses the system boundary
//   - Watermark: the code of the last order forwarded, used as the sole idempotency key
//
// Design Pattern: Ports & Adapters
//   - Ports (OrderSource, WatermarkStore, Submitter) are defined here
//   - Adapters (gorm, file/redis/s3, net/http) live in the infrastructure layer
package relay
