// Package harness runs multi-user sync scenarios against real stores.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: two_devices
//	description: "What this scenario validates"
//	document: d1
//	part_size_limit: 400
//	users:
//	  alice: { label: Alice }
//	  bob: {}
//	clients:
//	  a1: alice
//	  a2: alice
//	  b1: bob
//	steps:
//	  - client: a1
//	    set: { milk: "2" }
//	  - client: a1
//	    save: true
//	    expect: { saved: true }
//	  - client: a2
//	    merge: clients
//	  - client: b1
//	    import: a1
//	  - client: a2
//	    expect:
//	      values: { milk: "2" }
//	      min_version: 1
//	assertions:
//	  - type: part_chain
//	    client: a1
//	  - type: master_client
//	    client: a1
//	    latest: true
//
// Every user owns a separate in-memory store; every client is a replica
// writing to its user's store. A client's document is created empty on
// first use unless a restore or import step creates it.
//
// # Step Types
//
//   - set / delete: edit the client's document
//   - save: run SaveRemote
//   - merge: "clients" or "peers"
//   - restore: rebuild the client's document from its user's store,
//     optionally from another client's history
//   - import: rebuild the client's document from the master index of
//     another client's user
//
// # Assertion Types
//
//   - part_chain: the client's index has a well-formed part chain
//   - part_count: the client's index has exactly count parts
//   - master_client: the client is listed in its user's master index,
//     and with latest set is also its most recent writer
//
// # Deterministic Testing
//
// Index timestamps come from testutil.DeterministicClock and steps run
// sequentially, so traces are identical across runs and can be compared
// against golden files.
package harness
