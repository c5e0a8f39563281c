package mcpserver

// NoteFormatContract describes the on-disk note format and lifecycle that
// LLM consumers should know about before reading or editing notes.
const NoteFormatContract = `# Fleeting Note Format

Notes are short-lived Markdown files. Each one expires a fixed time after
its last activity unless it is pinned, and is then moved to the archive.

## File layout

- Active notes live in ` + "`" + `notes/YYYY-MM-DD/<id>.md` + "`" + `, bucketed by creation day.
- Archived notes live in ` + "`" + `archive/<id>.md` + "`" + `.
- ` + "`" + `index.json` + "`" + ` at the root records lifecycle state. Never edit it by hand.

## Header

` + "```" + `markdown
---
id: 7f0c2d4e-9a51-4a3b-8f77-1d2e3c4b5a69
createdAt: 2026-10-17T09:30:00.000Z
x: 120
y: 80
width: 320
height: 240
---
Body text in plain Markdown.
` + "```" + `

## Rules

1. The header is written by the service. Use the ` + "`" + `save_body` + "`" + ` tool with the body
   only; the header is rebuilt on every save.
2. ` + "`" + `x` + "`" + `, ` + "`" + `y` + "`" + `, ` + "`" + `width` + "`" + ` and ` + "`" + `height` + "`" + ` are optional and set via ` + "`" + `set_window` + "`" + `.
3. Saving or touching a note extends its expiry. Archived notes are read-only
   until restored with ` + "`" + `restore_note` + "`" + `.
4. Pinned notes never expire. Pinning an archived note does not restore it.
5. Encoding is UTF-8.
`
