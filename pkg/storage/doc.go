// Package storage is the root of stratum's disk-based storage engine.
//
// Data is organised into fixed-size 4 KB pages that are read and written
// as atomic units. The sub-packages build on that foundation:
//
//   - [stratum/pkg/storage/disk]  – the page-granular backing store: the
//     Manager interface, a single-file implementation, and an in-memory
//     one for tests.
//   - [stratum/pkg/storage/page]  – the frame type: one page buffer plus
//     the metadata (page id, pin count, dirty flag, latch) the buffer
//     pool manages it by.
//   - [stratum/pkg/storage/index/btree] – a concurrent B+ tree index
//     whose nodes are typed views over buffer pool pages.
//
// The buffer pool itself lives in [stratum/pkg/buffer]; everything here
// either feeds it (disk, page) or is built on top of it (btree).
package storage
