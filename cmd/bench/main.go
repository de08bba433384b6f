package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/fulldump/goconfig"

	"github.com/fulldump/itempicker/utils"
)

type Config struct {
	Test    string `usage:"name of the test: ALL | SELECT | ADD"`
	Base    string `usage:"base URL, empty starts a local server"`
	N       int64  `usage:"number of requests"`
	Workers int    `usage:"number of workers"`
	Items   int    `usage:"items generated by the local server"`
}

var tests = map[string]func(c Config){
	"SELECT": TestSelect,
	"ADD":    TestAdd,
}

func main() {

	c := Config{
		Test:    "select",
		Base:    "",
		N:       100_000,
		Workers: 16,
		Items:   1_000_000,
	}
	goconfig.Read(&c)

	name := strings.ToUpper(c.Test)
	if name == "ALL" {
		for _, name := range utils.GetKeys(tests) {
			fmt.Println("Running", name)
			tests[name](c)
		}
		return
	}

	test, exists := tests[name]
	if !exists {
		log.Fatalf("Unknown test %s, must be [ALL|%s]", c.Test, strings.Join(utils.GetKeys(tests), "|"))
	}
	test(c)
}
