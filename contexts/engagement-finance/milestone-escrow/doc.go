// Package milestoneescrow implements the milestone escrow engine: milestone
// lifecycle, escrowed payments, submissions with automated verification and
// dispute resolution.
//
// Layering:
// - domain: entities, the milestone state machine, access and fee policies, errors
// - application: commands/queries/workers using explicit ports
// - ports: persistence, funds transfer, verification, blob and event boundaries
// - adapters: HTTP facade, memory, postgres, stripe, vertexai, redis, blob, prometheus
// - transport: module-private DTOs for HTTP contracts
//
// Every state change of a milestone aggregate goes through one
// AggregateWriter.Commit guarded by the milestone version.
package milestoneescrow
