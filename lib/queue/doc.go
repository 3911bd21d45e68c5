// Package queue provides a lock-free Multi-Producer Single-Consumer (MPSC) queue.
// The batched HTTP link uses it to collect calls from any number of goroutines into
// a single batching loop.
//
// Features and Guarantees:
//
//   - Lock-Free writes: atomic operations for high throughput and low latency even
//     under high contention
//   - Unbounded Size: the queue can grow to any size, limited only by available memory
//   - Single Consumer: values are consumed through the Recv() channel, so the queue
//     can be used in select statements together with timers
//   - No Strict FIFO Guarantee across producers: under concurrent Push() operations the
//     order is determined by which producer completes first. Items of a single
//     producer keep their order.
package queue
