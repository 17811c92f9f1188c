package main

import (
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const (
	groupSync    = "sync"
	groupRecords = "records"
	groupFarm    = "farm"
	groupService = "service"
)

var (
	helpHeaderStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	helpCmdStyle    = lipgloss.NewStyle().Foreground(colorPrimaryLight)
)

// helpEnvVars are listed under the root command's help.
var helpEnvVars = [][2]string{
	{"FARMSYNC_FARM", "Farm profile (default 'default')"},
	{"FARMSYNC_URL", "Remote REST API base URL"},
	{"FARMSYNC_API_KEY", "Remote REST API key"},
	{"FARMSYNC_POSTGRES_DSN", "Direct Postgres connection"},
	{"FARMSYNC_DB_PATH", "Local database path"},
	{"FARMSYNC_LOG_LEVEL", "debug, info, warn or error"},
}

var helpTemplateFuncs = template.FuncMap{
	"header": func(s string) string {
		if isTTY() {
			return helpHeaderStyle.Render(s)
		}
		return s
	},
	"cmd": func(s string) string {
		if isTTY() {
			return helpCmdStyle.Render(s)
		}
		return s
	},
	"muted": func(s string) string {
		if isTTY() {
			return mutedStyle.Render(s)
		}
		return s
	},
	"envHelp": func() string {
		var b strings.Builder
		for _, kv := range helpEnvVars {
			name := kv[0] + strings.Repeat(" ", 23-len(kv[0]))
			if isTTY() {
				name = helpCmdStyle.Render(name)
			}
			b.WriteString("  " + name + kv[1] + "\n")
		}
		return strings.TrimRight(b.String(), "\n")
	},
}

// Root subcommands are listed by group, and the root help ends with the
// environment variables the client reads.
const helpTemplate = `{{with .Long}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{header "Usage:"}}
  {{cmd .CommandPath}}{{if .HasAvailableSubCommands}} {{muted "[command]"}}{{end}}{{if .HasAvailableFlags}} {{muted "[flags]"}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}{{header "Commands:"}}
{{range $cmds}}{{if .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{else}}{{range $group := .Groups}}{{header $group.Title}}
{{range $cmds}}{{if and (eq .GroupID $group.ID) .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{if not .AllChildCommandsHaveGroup}}{{header "Other Commands:"}}
{{range $cmds}}{{if and (eq .GroupID "") .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}{{header "Flags:"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}{{header "Global Flags:"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if not .HasParent}}{{header "Environment:"}}
{{envHelp}}

{{end}}{{if .HasAvailableSubCommands}}{{muted "Use"}} {{cmd (printf "%s [command] --help" .CommandPath)}} {{muted "for more information."}}
{{end}}`

// initHelp installs the styled help template on cmd and its subcommands.
func initHelp(cmd *cobra.Command) {
	for name, fn := range helpTemplateFuncs {
		cobra.AddTemplateFunc(name, fn)
	}
	applyHelpTemplate(cmd)
}

func applyHelpTemplate(cmd *cobra.Command) {
	cmd.SetHelpTemplate(helpTemplate)
	for _, subCmd := range cmd.Commands() {
		applyHelpTemplate(subCmd)
	}
}
