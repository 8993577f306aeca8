// Package cmd implements the censusctl commands.
//
// Pipeline overview:
//   - fetch-cb downloads cartographic boundary archives (one national file or
//     one per configured state), reprojects them to WGS84 and writes one
//     GeoJSON layer per year and geography under input/cb.
//   - fetch-lodes downloads the main and aux origin-destination tables for
//     every configured state and writes them under input/lodes.
//   - aggregate-lodes rolls block-level flows up to each configured geography
//     and origin and writes Parquet flow tables under input/intermediate.
//   - build-supertract dissolves the tract layer into supertracts.
//   - publish uploads flow tables to the public bucket, skipping objects whose
//     remote MD5 already matches, and records every decision in the ledger.
//
// Fetches run on a bounded pool. A key that fails is logged and dropped; a
// batch in which every key fails writes nothing and the command exits
// non-zero. Configuration errors are reported before any network activity.
//
// Set metrics.addr to expose /metrics and /healthz while a command runs.
package cmd
