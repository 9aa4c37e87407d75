// Package triage provides the business boundary for the emergency-room triage
// tree. It defines the Graph (an arena of Steps, Options and Edges with the
// mutation rules the editor relies on), the wire DTOs used to persist it, the
// decision-tree walk served to patients, the Store interface (persistence) and
// the Service that loads and saves the tree wholesale.
package triage
