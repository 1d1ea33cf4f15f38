package main

import (
	"strconv"

	"github.com/pterm/pterm"

	"github.com/MarcoPoloResearchLab/rangedrill/internal/hands"
)

const gridRanks = "AKQJT98765432"

// renderGrid draws the 13x13 matrix. With distances it prints the border
// distance of every hand, otherwise the colour-coded action.
func renderGrid(grid hands.Grid, distances map[string]int) (string, error) {
	header := []string{""}
	for index := 0; index < len(gridRanks); index++ {
		header = append(header, string(gridRanks[index]))
	}
	data := pterm.TableData{header}
	for row := 0; row < len(gridRanks); row++ {
		line := []string{string(gridRanks[row])}
		for col := 0; col < len(gridRanks); col++ {
			hand := hands.HandAt(row, col)
			line = append(line, gridCell(hand, grid.Action(hand), distances))
		}
		data = append(data, line)
	}
	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
}

func gridCell(hand hands.Hand, action hands.Action, distances map[string]int) string {
	notation := hand.String()
	if distances != nil {
		distance, ok := distances[notation]
		if !ok {
			return pterm.FgDarkGray.Sprint("-")
		}
		if distance == 0 {
			return pterm.LightYellow(strconv.Itoa(distance))
		}
		return strconv.Itoa(distance)
	}
	switch action {
	case hands.Raise:
		return pterm.LightRed(notation)
	case hands.Call:
		return pterm.LightGreen(notation)
	default:
		return pterm.FgDarkGray.Sprint(notation)
	}
}

func distanceLabels(distances map[hands.Hand]int) map[string]int {
	labels := make(map[string]int, len(distances))
	for hand, distance := range distances {
		labels[hand.String()] = distance
	}
	return labels
}
