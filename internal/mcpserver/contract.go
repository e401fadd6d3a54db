package mcpserver

// ExportFormat describes the JSON document produced by export_folder.
const ExportFormat = `# feta Export Format

An export is one JSON object with two members:

` + "```" + `json
{
  "meta": [
    {
      "title": "Weekly standup.md",
      "slug": "weekly-standup-md",
      "frontmatter": {"status": "draft"},
      "tags": ["meeting"],
      "stat": {"size": 412, "ctime": 1736935200000, "mtime": 1736935200000},
      "path": "work/Weekly standup.md"
    }
  ],
  "notes": {
    "weekly-standup-md": {
      "meta": { "...": "same object as in meta" },
      "content": "Body without the frontmatter block."
    }
  }
}
` + "```" + `

## Rules

1. **meta** lists every exported note in folder order. It may hold more
   entries than **notes** when two file names produce the same slug.
2. **notes** is keyed by slug. On a slug collision the later note wins.
3. **title** is the file name, extension included.
4. **slug** is the title lowercased with accents removed; every run of
   characters other than letters and digits becomes a single ` + "`" + `-` + "`" + `.
5. **frontmatter** is ` + "`" + `{}` + "`" + ` and **tags** is ` + "`" + `[]` + "`" + ` when a note has none.
   Tags carry no leading ` + "`" + `#` + "`" + `.
6. **stat** times are Unix milliseconds.
7. **content** is the Markdown body with the frontmatter removed, or the
   rendered HTML when the export was run with ` + "`" + `render_html` + "`" + `.
8. An export with no matching notes is ` + "`" + `{"meta":[],"notes":{}}` + "`" + `.
`
