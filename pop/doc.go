// Package pop defines the population I/O plugin surface: the Reader
// that fills agent memory from a population file, the Writer that
// flushes per-iteration snapshots, and the Registry mapping output
// format names to writer factories.
//
// Plugins discover the agent memory schema through mem.AgentLayout
// values handed to their factories. The concrete backends live in
// subpackages: xmlpop (the canonical states XML dialect, read and
// write), csvpop, sqlitepop, pgpop, and redispop. The model-file parser
// for the xmodel v2 schema also lives here.
package pop
