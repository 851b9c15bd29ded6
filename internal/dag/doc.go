// Package dag builds the task graph of a build descriptor: one node per
// task, edges from `depends_on` lists and from `task.<type>.<name>`
// references inside task arguments. It selects the subgraph needed for the
// requested tasks and orders it for execution and display.
package dag
