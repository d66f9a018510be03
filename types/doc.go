// Copyright (c) MemFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared type definitions for the MemFlow library.

types is the lowest-level public package and depends on no other package in
the module. It defines the contracts shared by memory, evolution, and core:

  - TaskRecord        — a completed task stored in the memory tiers
  - Outcome           — the executor-reported result used for fitness scoring
  - Fingerprint       — normalized token set used for similarity comparison
  - StoreTier         — which memory tier currently holds a record
  - ParameterGenome   — one set of tunable execution parameters with fitness
  - Error / ErrorCode — structured error taxonomy
*/
package types
