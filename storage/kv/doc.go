// Package kv provides an interface for implementing
// kv drivers that can be used to build more complex storage
// interfaces.
//
// A kv plugin is a factory for root store instances. A root store
// contains zero or more stores and each store is a sorted
// key-value map. Each store operates independently from other stores.
// Transactions for different stores are completely independent from each
// other: there are no ordering or consistency guarantees for transactions spawned
// from different stores. Within a store transactions are stricly serializable.
//
//  - Root Store
//    - Store A
//      - key1: abc
//      - key2: def
//    - Store B
//      - keyN: aaa
//      - keyM: xyz
//
// Each store acts like a namespace, allowing different components that
// require a kv storage interface to have their own store without needing
// to worry about stepping on the toes of other components. Within a
// store, Namespace() carves out further key prefixes.
package kv
