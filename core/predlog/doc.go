// Package predlog persists served predictions so they can be listed and
// exported later. Records go to a rotating JSONL file or a SQLite database.
package predlog
