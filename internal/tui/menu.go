package tui

import tea "github.com/charmbracelet/bubbletea"

/* ----------------------------------------
	MENU TREE
---------------------------------------- */

type MenuItem struct {
	Label   string
	Submenu *Menu
	Action  func() tea.Cmd
}

type Menu struct {
	Title  string
	Items  []MenuItem
	Parent *Menu
}

/* ----------------------------------------
	MENU TREE DEFINITION
---------------------------------------- */

// linkParents points every "Back" item at its menu's parent.
func linkParents(menu *Menu, parent *Menu) {
	menu.Parent = parent

	for i := range menu.Items {
		item := &menu.Items[i]

		if item.Label == "Back" {
			item.Submenu = parent
			continue
		}

		if item.Submenu != nil {
			linkParents(item.Submenu, menu)
		}
	}
}

func buildMenuTree(m *Model) *Menu {

	/* Submenus */
	dashboard := &Menu{
		Title: "Dashboard",
		Items: []MenuItem{
			{Label: "Summary", Action: m.show(viewSummary)},
			{Label: "Equipment", Action: m.show(viewEquipment)},
			{Label: "Type Distribution", Action: m.show(viewChart)},
			{Label: "Refresh", Action: m.loadDashboard},
			{Label: "Back"},
		},
	}

	/* Root Menu */
	root := &Menu{
		Title: "Main Menu",
		Items: []MenuItem{
			{Label: "Dashboard ->", Submenu: dashboard},
			{Label: "History", Action: m.loadHistory},
			{Label: "Upload CSV", Action: m.promptUpload},
			{Label: "Download Report", Action: m.downloadReport},
			{Label: "Logout", Action: m.logout},
			{Label: "Quit", Action: func() tea.Cmd { return tea.Quit }},
		},
	}

	linkParents(root, nil)

	return root
}
