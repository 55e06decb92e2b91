// Package formats reads and writes the files the fracture tools exchange:
// TetGen .node/.ele meshes and the binary lattice parameter block.
package formats
