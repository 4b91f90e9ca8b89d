package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(accentColor).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(okColor).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// StyledHelpPrinter creates a custom help printer with Lipgloss styling.
// The extra lines are printed after the flags, e.g. usage notes.
func StyledHelpPrinter(description string, extra ...string) kong.HelpPrinter {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(helpTitleStyle.Render("delayfix"))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render(description))
		sb.WriteString("\n")

		node := ctx.Selected()

		sb.WriteString(helpSectionStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		if node == nil {
			sb.WriteString(fmt.Sprintf("%s <command> [flags]", ctx.Model.Name))
		} else {
			sb.WriteString(fmt.Sprintf("%s %s", ctx.Model.Name, node.Summary()))
		}
		sb.WriteString("\n")

		if node == nil {
			if cmds := getCommands(ctx.Model.Node); len(cmds) > 0 {
				sb.WriteString("\n")
				sb.WriteString(helpSectionStyle.Render("Commands:"))
				sb.WriteString("\n")
				for _, c := range cmds {
					sb.WriteString("  ")
					sb.WriteString(helpArgStyle.Render(fmt.Sprintf("%-10s", c.name)))
					sb.WriteString("  ")
					sb.WriteString(c.help)
					sb.WriteString("\n")
				}
			}
		} else if node.Help != "" {
			sb.WriteString("\n  ")
			sb.WriteString(node.Help)
			sb.WriteString("\n")
		}

		args := getArguments(node)
		if len(args) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Arguments:"))
			sb.WriteString("\n")
			for _, arg := range args {
				sb.WriteString("  ")
				sb.WriteString(helpArgStyle.Render(arg.name))
				if arg.help != "" {
					sb.WriteString("  ")
					sb.WriteString(arg.help)
				}
				sb.WriteString("\n")
			}
		}

		flags := getFlags(ctx.Model.Node, node)
		if len(flags) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Flags:"))
			sb.WriteString("\n")
			for _, flag := range flags {
				sb.WriteString("  ")
				sb.WriteString(helpFlagStyle.Render(flag.flags))
				if flag.help != "" {
					sb.WriteString("  ")
					sb.WriteString(flag.help)
				}
				if flag.defaultVal != "" {
					sb.WriteString(" ")
					sb.WriteString(helpDefaultStyle.Render("(default: " + flag.defaultVal + ")"))
				}
				sb.WriteString("\n")
			}
		}

		if len(extra) > 0 {
			sb.WriteString("\n")
			sb.WriteString(helpSectionStyle.Render("Notes:"))
			sb.WriteString("\n")
			for _, line := range extra {
				sb.WriteString("  ")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

type command struct {
	name string
	help string
}

type argument struct {
	name string
	help string
}

type flag struct {
	flags      string
	help       string
	defaultVal string
}

func getCommands(root *kong.Node) []command {
	var cmds []command
	for _, c := range root.Children {
		if c.Hidden {
			continue
		}
		cmds = append(cmds, command{name: c.Name, help: c.Help})
	}
	return cmds
}

func getArguments(node *kong.Node) []argument {
	if node == nil {
		return nil
	}
	var args []argument
	for _, arg := range node.Positional {
		args = append(args, argument{name: arg.Summary(), help: arg.Help})
	}
	return args
}

// getFlags lists the application flags followed by those of the selected
// command, if any.
func getFlags(root, selected *kong.Node) []flag {
	flags := []flag{{
		flags: "-h, --help",
		help:  "Show context-sensitive help.",
	}}

	nodes := []*kong.Node{root}
	if selected != nil && selected != root {
		nodes = append(nodes, selected)
	}
	for _, n := range nodes {
		for _, f := range n.Flags {
			if f.Name == "help" || f.Hidden {
				continue
			}

			flagStr := ""
			if f.Short != 0 {
				flagStr = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
			} else {
				flagStr = fmt.Sprintf("--%s", f.Name)
			}

			if !f.IsBool() && f.PlaceHolder != "" {
				flagStr += "=" + strings.ToUpper(f.PlaceHolder)
			}

			flags = append(flags, flag{
				flags:      flagStr,
				help:       f.Help,
				defaultVal: f.Default,
			})
		}
	}
	return flags
}
