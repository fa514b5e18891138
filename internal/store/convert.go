package store

import "github.com/medialens/analysis-service/internal/model"

func personEntity(mediaID uint, p model.PersonInfo) *model.DetectedPerson {
	ent := &model.DetectedPerson{
		MediaFileID:  mediaID,
		UniqueID:     p.UniqueID,
		AgeBracket:   string(p.AgeBracket),
		EstimatedAge: p.EstimatedAge,
		Emotion:      string(p.Emotion),
		Confidence:   p.Confidence,
		FrameNumber:  p.FrameNumber,
		Timestamp:    p.Timestamp,
	}
	if bb := p.BoundingBox; bb != nil {
		ent.BoxX, ent.BoxY = &bb.X, &bb.Y
		ent.BoxWidth, ent.BoxHeight = &bb.Width, &bb.Height
	}
	return ent
}

func objectEntity(mediaID uint, o model.ObjectInfo) *model.DetectedObject {
	ent := &model.DetectedObject{
		MediaFileID: mediaID,
		Name:        o.Name,
		Category:    o.Category,
		Confidence:  o.Confidence,
		FrameNumber: o.FrameNumber,
		Timestamp:   o.Timestamp,
	}
	if bb := o.BoundingBox; bb != nil {
		ent.BoxX, ent.BoxY = &bb.X, &bb.Y
		ent.BoxWidth, ent.BoxHeight = &bb.Width, &bb.Height
	}
	return ent
}

func bookEntity(mediaID uint, b model.BookInfo) *model.DetectedBook {
	return &model.DetectedBook{
		MediaFileID:   mediaID,
		UniqueID:      b.UniqueID,
		Title:         b.Title,
		Author:        b.Author,
		ISBN:          b.ISBN,
		Publisher:     b.Publisher,
		Year:          b.Year,
		ExtractedText: b.ExtractedText,
		Confidence:    b.Confidence,
		FrameNumber:   b.FrameNumber,
		Timestamp:     b.Timestamp,
	}
}

func personInfo(ent *model.DetectedPerson) model.PersonInfo {
	info := model.PersonInfo{
		UniqueID:     ent.UniqueID,
		AgeBracket:   model.AgeBracket(ent.AgeBracket),
		EstimatedAge: ent.EstimatedAge,
		Emotion:      model.Emotion(ent.Emotion),
		Confidence:   ent.Confidence,
		FrameNumber:  ent.FrameNumber,
		Timestamp:    ent.Timestamp,
	}
	if ent.BoxX != nil && ent.BoxY != nil && ent.BoxWidth != nil && ent.BoxHeight != nil {
		info.BoundingBox = &model.BoundingBox{
			X: *ent.BoxX, Y: *ent.BoxY, Width: *ent.BoxWidth, Height: *ent.BoxHeight,
		}
	}
	return info
}

func objectInfo(ent *model.DetectedObject) model.ObjectInfo {
	info := model.ObjectInfo{
		Name:        ent.Name,
		Category:    ent.Category,
		Confidence:  ent.Confidence,
		FrameNumber: ent.FrameNumber,
		Timestamp:   ent.Timestamp,
	}
	if ent.BoxX != nil && ent.BoxY != nil && ent.BoxWidth != nil && ent.BoxHeight != nil {
		info.BoundingBox = &model.BoundingBox{
			X: *ent.BoxX, Y: *ent.BoxY, Width: *ent.BoxWidth, Height: *ent.BoxHeight,
		}
	}
	return info
}

func bookInfo(ent *model.DetectedBook) model.BookInfo {
	return model.BookInfo{
		UniqueID:      ent.UniqueID,
		Title:         ent.Title,
		Author:        ent.Author,
		ISBN:          ent.ISBN,
		Publisher:     ent.Publisher,
		Year:          ent.Year,
		ExtractedText: ent.ExtractedText,
		Confidence:    ent.Confidence,
		FrameNumber:   ent.FrameNumber,
		Timestamp:     ent.Timestamp,
	}
}
