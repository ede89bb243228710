package forecast

import "github.com/yanqian/solar-forecast/pkg/util"

func summarize(records []Record, startDate, endDate string) Summary {
	sum := Summary{
		PredictionCount: len(records),
		RequestedRange:  DateRange{Start: startDate, End: endDate},
	}
	if len(records) == 0 {
		return sum
	}

	var total, peak float64
	dates := make(map[string]struct{})
	first, last := records[0].Date, records[0].Date
	for _, rec := range records {
		// Each record covers one hour, so summed kW is kWh.
		total += rec.PredictedKW
		if rec.PredictedKW > peak {
			peak = rec.PredictedKW
		}
		if rec.Error == "" && !rec.IsFallback {
			sum.ValidPredictionCount++
		}
		dates[rec.Date] = struct{}{}
		if rec.Date < first {
			first = rec.Date
		}
		if rec.Date > last {
			last = rec.Date
		}
	}

	days := len(dates)
	if days < 1 {
		days = 1
	}
	sum.TotalKWh = util.Round2(total)
	sum.PeakKW = util.Round2(peak)
	sum.AvgKWPerDay = util.Round2(total / float64(days))
	sum.DateRange = DateRange{Start: first, End: last}
	return sum
}
