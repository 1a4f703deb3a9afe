package lua

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	lua "github.com/yuin/gopher-lua"
)

const luaSelectionTypeName = "html_selection"

// HTMLModule exposes goquery selection to scripts:
//
//	local doc, err = html.parse(body)
//	for _, el in ipairs(html.select(doc, ".status")) do
//	  html.text(el); html.attr(el, "href")
//	end
type HTMLModule struct{}

func NewHTMLModule() *HTMLModule {
	return &HTMLModule{}
}

func (h *HTMLModule) Name() string {
	return "html"
}

func (h *HTMLModule) Register(L *lua.LState) error {
	L.NewTypeMetatable(luaSelectionTypeName)

	htmlTable := L.NewTable()
	L.SetFuncs(htmlTable, map[string]lua.LGFunction{
		"parse":      h.parse,
		"select":     h.selectAll,
		"select_one": h.selectOne,
		"text":       h.text,
		"attr":       h.attr,
	})
	L.SetGlobal("html", htmlTable)
	return nil
}

func pushSelection(L *lua.LState, selection *goquery.Selection) {
	ud := L.NewUserData()
	ud.Value = selection
	L.SetMetatable(ud, L.GetTypeMetatable(luaSelectionTypeName))
	L.Push(ud)
}

func checkSelection(L *lua.LState, n int) *goquery.Selection {
	selection, ok := L.CheckUserData(n).Value.(*goquery.Selection)
	if !ok {
		L.ArgError(n, "expected html document or element")
		return nil
	}
	return selection
}

func (h *HTMLModule) parse(L *lua.LState) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(L.CheckString(1)))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString("failed to parse HTML: " + err.Error()))
		return 2
	}
	pushSelection(L, doc.Selection)
	return 1
}

func (h *HTMLModule) selectAll(L *lua.LState) int {
	selection := checkSelection(L, 1)
	selector := L.CheckString(2)

	elements := L.NewTable()
	selection.Find(selector).Each(func(_ int, s *goquery.Selection) {
		ud := L.NewUserData()
		ud.Value = s
		L.SetMetatable(ud, L.GetTypeMetatable(luaSelectionTypeName))
		elements.Append(ud)
	})

	L.Push(elements)
	return 1
}

func (h *HTMLModule) selectOne(L *lua.LState) int {
	found := checkSelection(L, 1).Find(L.CheckString(2)).First()
	if found.Length() == 0 {
		L.Push(lua.LNil)
		return 1
	}
	pushSelection(L, found)
	return 1
}

func (h *HTMLModule) text(L *lua.LState) int {
	L.Push(lua.LString(strings.TrimSpace(checkSelection(L, 1).Text())))
	return 1
}

func (h *HTMLModule) attr(L *lua.LState) int {
	value, exists := checkSelection(L, 1).Attr(L.CheckString(2))
	if !exists {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(value))
	return 1
}
